// Package rooms multiplexes many logical rooms over the one shared
// connection: refcounted join/leave bookkeeping, strict per-room routing of
// inbound events, and re-joining everything after a reconnect. It is the
// only layer that writes to the transport.
package rooms

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/campusconnect/messaging/models"
	"github.com/campusconnect/messaging/pkg/apperrors"
	"github.com/campusconnect/messaging/presence"
	"github.com/campusconnect/messaging/transport"
)

// subscriptionBuffer bounds per-subscription delivery; a consumer that stops
// draining loses newest-first rather than stalling every other room.
const subscriptionBuffer = 64

type roomEntry struct {
	refs int
	subs map[*Subscription]struct{}
}

// Multiplexer routes inbound room-scoped events and owns join/leave traffic
type Multiplexer struct {
	conn    *transport.Manager
	tracker *presence.Tracker
	logger  zerolog.Logger

	mu    sync.Mutex
	rooms map[models.RoomKey]*roomEntry
}

// NewMultiplexer wires the multiplexer onto the connection manager. It
// registers itself as the transport's event and state consumer.
func NewMultiplexer(conn *transport.Manager, tracker *presence.Tracker, logger zerolog.Logger) *Multiplexer {
	m := &Multiplexer{
		conn:    conn,
		tracker: tracker,
		logger:  logger,
		rooms:   make(map[models.RoomKey]*roomEntry),
	}
	conn.OnEvent(m.route)
	conn.OnStateChange(m.onStateChange)
	return m
}

// Join acquires a subscription to a room. Concurrent subscriptions to the
// same key share one underlying join-room: only the first acquisition emits
// it, and only the last release emits leave-room. Joining while disconnected
// succeeds locally; the join goes out on the next Ready transition.
func (m *Multiplexer) Join(room models.RoomKey) (*Subscription, error) {
	if err := room.Validate(); err != nil {
		return nil, err
	}

	sub := &Subscription{
		room:     room,
		mux:      m,
		messages: make(chan models.Message, subscriptionBuffer),
	}

	m.mu.Lock()
	entry, ok := m.rooms[room]
	if !ok {
		entry = &roomEntry{subs: make(map[*Subscription]struct{})}
		m.rooms[room] = entry
	}
	entry.refs++
	entry.subs[sub] = struct{}{}
	first := entry.refs == 1
	m.mu.Unlock()

	if first {
		m.emitJoin(room)
	}

	m.logger.Debug().Str("room", room.String()).Bool("first", first).Msg("Room subscription acquired")
	return sub, nil
}

// release drops one subscription; the underlying room subscription is only
// released when the last one leaves.
func (m *Multiplexer) release(sub *Subscription) {
	m.mu.Lock()
	entry, ok := m.rooms[sub.room]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(entry.subs, sub)
	entry.refs--
	last := entry.refs <= 0
	if last {
		delete(m.rooms, sub.room)
	}
	// Closing under the lock keeps route deliveries from racing a close
	close(sub.messages)
	m.mu.Unlock()

	if last {
		m.tracker.Clear(sub.room.String())
		if err := m.emitLeave(sub.room); err != nil {
			// Leaving while disconnected is fine: a dead connection has no
			// subscriptions to release on the server side either.
			m.logger.Debug().Err(err).Str("room", sub.room.String()).Msg("Leave not sent")
		}
	}
}

// SendMessage writes an outbound chat message for a room. Callers must hold
// a live subscription; writing to a never-joined room is a caller bug.
func (m *Multiplexer) SendMessage(msg transport.OutboundMessage) error {
	if !m.joined(msg.Room) {
		return apperrors.NewCustomError(apperrors.ErrRoomNotJoined, "send to room "+msg.Room.String()+" without a join")
	}
	env, err := transport.NewEnvelope(transport.EventMessage, msg)
	if err != nil {
		return err
	}
	return m.conn.Send(env)
}

// SendTyping signals that the viewer is typing in a room. Best effort: a
// down transport swallows the signal, it is advisory state only.
func (m *Multiplexer) SendTyping(room models.RoomKey) {
	if !m.joined(room) {
		return
	}
	env, err := transport.NewEnvelope(transport.EventTyping, transport.TypingPayload{Room: room})
	if err != nil {
		return
	}
	if err := m.conn.Send(env); err != nil {
		m.logger.Debug().Err(err).Str("room", room.String()).Msg("Typing signal dropped")
	}
}

func (m *Multiplexer) joined(room models.RoomKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[room]
	return ok
}

func (m *Multiplexer) emitJoin(room models.RoomKey) {
	env, err := transport.NewEnvelope(transport.EventJoinRoom, transport.JoinPayload{Room: room})
	if err != nil {
		return
	}
	if err := m.conn.Send(env); err != nil {
		m.logger.Debug().Err(err).Str("room", room.String()).Msg("Join deferred until transport is ready")
	}
}

func (m *Multiplexer) emitLeave(room models.RoomKey) error {
	env, err := transport.NewEnvelope(transport.EventLeaveRoom, transport.JoinPayload{Room: room})
	if err != nil {
		return err
	}
	return m.conn.Send(env)
}

// onStateChange re-issues join-room for every room with a live refcount when
// the transport becomes ready. Subscriptions are not preserved server-side
// across reconnects, so the multiplexer restores them from its own books.
func (m *Multiplexer) onStateChange(state transport.State) {
	if state != transport.StateReady {
		return
	}

	m.mu.Lock()
	keys := make([]models.RoomKey, 0, len(m.rooms))
	for room := range m.rooms {
		keys = append(keys, room)
	}
	m.mu.Unlock()

	for _, room := range keys {
		m.emitJoin(room)
	}
	if len(keys) > 0 {
		m.logger.Info().Int("rooms", len(keys)).Msg("Re-joined rooms after transport became ready")
	}
}

// route delivers one inbound event to exactly the subscriptions registered
// for its room field. An event for club:7 is never seen by project:3.
func (m *Multiplexer) route(env transport.Envelope) {
	switch env.Event {
	case transport.EventMessageNew:
		var msg models.Message
		if err := env.Decode(&msg); err != nil {
			m.logger.Error().Err(err).Msg("Failed to decode inbound message")
			return
		}
		m.routeMessage(msg)

	case transport.EventOnlineUsers:
		var payload transport.OnlineUsersPayload
		if err := env.Decode(&payload); err != nil {
			m.logger.Error().Err(err).Msg("Failed to decode presence snapshot")
			return
		}
		if m.joined(payload.Room) {
			m.tracker.SetOnline(payload.Room.String(), payload.Users)
		}

	case transport.EventUserTyping:
		var payload transport.UserTypingPayload
		if err := env.Decode(&payload); err != nil {
			m.logger.Error().Err(err).Msg("Failed to decode typing event")
			return
		}
		if m.joined(payload.Room) {
			m.tracker.Touch(payload.Room.String(), payload.UserID, payload.Name)
		}

	default:
		m.logger.Debug().Str("event", env.Event).Msg("Ignoring unrecognized event")
	}
}

func (m *Multiplexer) routeMessage(msg models.Message) {
	// A message from a user ends their typing state
	m.tracker.StopTyping(msg.Room.String(), msg.From.ID)

	m.mu.Lock()
	entry, ok := m.rooms[msg.Room]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug().Str("room", msg.Room.String()).Msg("Dropping message for a room nobody has open")
		return
	}
	for sub := range entry.subs {
		select {
		case sub.messages <- msg:
		default:
			m.logger.Warn().Str("room", msg.Room.String()).Msg("Subscription buffer full, dropping delivery")
		}
	}
	m.mu.Unlock()
}

// Subscription is one consumer's scoped acquisition of a room
type Subscription struct {
	room     models.RoomKey
	mux      *Multiplexer
	messages chan models.Message
	leave    sync.Once
}

// Room returns the key this subscription is bound to
func (s *Subscription) Room() models.RoomKey {
	return s.room
}

// Messages is the stream of live messages routed to this room. Closed on
// Leave.
func (s *Subscription) Messages() <-chan models.Message {
	return s.messages
}

// Leave releases the acquisition. Idempotent, and safe even if the join
// never made it onto the wire.
func (s *Subscription) Leave() {
	s.leave.Do(func() {
		s.mux.release(s)
	})
}
