package chat

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campusconnect/messaging/access"
	"github.com/campusconnect/messaging/compose"
	"github.com/campusconnect/messaging/history"
	"github.com/campusconnect/messaging/models"
	"github.com/campusconnect/messaging/pkg/apperrors"
	"github.com/campusconnect/messaging/rooms"
	"github.com/campusconnect/messaging/transport"
)

// RoomView is one open conversation: the reconciled message sequence, the
// viewer's capability, presence/typing state and the draft being composed.
// Opening a view acquires a room join; Close releases it.
type RoomView struct {
	room   models.RoomKey
	client *Client
	sub    *rooms.Subscription
	log    *history.Log
	draft  compose.Draft
	logger zerolog.Logger

	mu      sync.Mutex
	subject *models.Subject

	loaded chan struct{}
	close  sync.Once
	done   chan struct{}
}

// Open joins a room and starts reconciling its state. The subject fetch
// happens here because the capability gates everything else; the history
// load runs in the background (WaitHistory blocks on it when the caller
// needs the backlog before rendering).
func (c *Client) Open(ctx context.Context, room models.RoomKey) (*RoomView, error) {
	if err := room.Validate(); err != nil {
		return nil, err
	}

	sub, err := c.mux.Join(room)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With().Str("component", "chat").Str("room", room.String()).Logger()
	rv := &RoomView{
		room:   room,
		client: c,
		sub:    sub,
		log:    history.NewLog(room, logger),
		logger: logger,
		loaded: make(chan struct{}),
		done:   make(chan struct{}),
	}

	// Subject fetch; the general room has none. A failed fetch leaves the
	// subject absent and the capability fails closed rather than open.
	if room != models.GeneralRoom {
		subject, err := c.rest.Subject(ctx, room)
		if err != nil {
			logger.Warn().Err(err).Msg("Subject fetch failed, room stays read-denied until refreshed")
		} else {
			rv.subject = subject
		}
	}

	go rv.consume()
	go func() {
		defer closeOnce(rv.loaded)
		if err := rv.log.Load(context.Background(), c.rest); err != nil {
			logger.Debug().Err(err).Msg("Initial history load did not complete")
		}
	}()

	return rv, nil
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// consume appends live messages to the log until the subscription closes.
// The sender's own echoed message is matched up by correlation id instead of
// appended twice.
func (rv *RoomView) consume() {
	defer close(rv.done)
	for msg := range rv.sub.Messages() {
		viewerID, _, _ := rv.client.viewer()
		if msg.ClientID != "" && msg.From.ID == viewerID && rv.log.Replace(msg.ClientID, msg) {
			continue
		}
		rv.log.Append(msg)
	}
}

// Room returns the room key
func (rv *RoomView) Room() models.RoomKey {
	return rv.room
}

// Messages returns the reconciled sequence in arrival order
func (rv *RoomView) Messages() []models.Message {
	return rv.log.Messages()
}

// WaitHistory blocks until the initial backlog load has settled, then
// reports its outcome. Live messages append regardless of the outcome.
func (rv *RoomView) WaitHistory(ctx context.Context) error {
	select {
	case <-rv.loaded:
		return rv.log.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HistoryError reports whether the backlog fetch failed; the retry
// affordance is RetryHistory.
func (rv *RoomView) HistoryError() bool {
	return rv.log.Err() != nil
}

// RetryHistory re-runs the backlog fetch after a failure
func (rv *RoomView) RetryHistory(ctx context.Context) error {
	return rv.log.Load(ctx, rv.client.rest)
}

// Capability computes the viewer's current capability for this room. It is
// recomputed on every call: membership is mutable and the decision must
// track the subject and session as they stand now.
func (rv *RoomView) Capability() models.Capability {
	viewerID, _, role := rv.client.viewer()

	if rv.room == models.GeneralRoom {
		return access.ResolveGeneral(viewerID, role)
	}

	rv.mu.Lock()
	subject := rv.subject
	rv.mu.Unlock()
	return access.ResolveFor(subject, viewerID, role)
}

// SenderRole labels a message's sender for display, using the room subject's
// relationship graph with the sender's global role as fallback.
func (rv *RoomView) SenderRole(msg models.Message) string {
	rv.mu.Lock()
	subject := rv.subject
	rv.mu.Unlock()
	return access.SenderRole(subject, msg.From)
}

// RefreshSubject refetches the room subject so capability decisions see
// membership changes made since Open.
func (rv *RoomView) RefreshSubject(ctx context.Context) error {
	if rv.room == models.GeneralRoom {
		return nil
	}
	subject, err := rv.client.rest.Subject(ctx, rv.room)
	if err != nil {
		return err
	}
	rv.mu.Lock()
	rv.subject = subject
	rv.mu.Unlock()
	return nil
}

// Draft returns the composition state for this room
func (rv *RoomView) Draft() *compose.Draft {
	return &rv.draft
}

// NotifyTyping signals the viewer's typing to other participants
func (rv *RoomView) NotifyTyping() {
	rv.client.mux.SendTyping(rv.room)
}

// Typing returns the names of other participants currently typing
func (rv *RoomView) Typing() []string {
	viewerID, _, _ := rv.client.viewer()
	return rv.client.tracker.Typing(rv.room.String(), viewerID)
}

// Online returns the ids of participants currently in the room
func (rv *RoomView) Online() []string {
	return rv.client.tracker.Online(rv.room.String())
}

// OnlineCount returns the number of participants currently in the room
func (rv *RoomView) OnlineCount() int {
	return rv.client.tracker.OnlineCount(rv.room.String())
}

// Connected reports whether live updates are flowing for this room
func (rv *RoomView) Connected() bool {
	return rv.client.Connected()
}

// Send sends the current draft. A rejected send (no write capability, empty
// draft, a down transport) preserves the draft so composed input is
// never lost. On success the draft clears and the message shows locally in
// send order, before any acknowledgement.
func (rv *RoomView) Send() error {
	if rv.draft.Empty() {
		return apperrors.ErrEmptyMessage
	}

	capability := rv.Capability()
	if !capability.CanWrite {
		return apperrors.NewSendRejectedError("not permitted to write in " + rv.room.String())
	}

	text := rv.draft.Text()
	meta := rv.draft.Meta()
	if err := rv.deliver(text, meta); err != nil {
		return err
	}

	rv.draft.Sent()
	return nil
}

// SendAttachment uploads media and sends the resulting URL as an attachment
// message. The attachment kind follows the content type: video/* is video,
// anything else is image.
func (rv *RoomView) SendAttachment(ctx context.Context, filename, contentType string, content io.Reader) error {
	capability := rv.Capability()
	if !capability.CanWrite {
		return apperrors.NewSendRejectedError("not permitted to write in " + rv.room.String())
	}

	url, err := rv.client.rest.Upload(ctx, uploadScope(rv.room), filename, contentType, content)
	if err != nil {
		return err
	}

	kind := models.MetaImage
	if strings.HasPrefix(contentType, "video") {
		kind = models.MetaVideo
	}
	return rv.deliver(url, models.AttachmentMeta(kind))
}

// deliver sends one outbound message and appends its local echo
func (rv *RoomView) deliver(text string, meta models.Meta) error {
	viewerID, name, role := rv.client.viewer()

	outbound := transport.OutboundMessage{
		Room:     rv.room,
		Text:     text,
		Meta:     meta,
		ClientID: uuid.NewString(),
	}

	if err := rv.client.mux.SendMessage(outbound); err != nil {
		if apperrors.Is(err, apperrors.ErrNotConnected, apperrors.ErrTransportUnavailable) {
			return apperrors.NewCustomError(apperrors.ErrSendRejected, "transport is down, draft preserved")
		}
		return err
	}

	// Local echo: shown in send order; the server copy replaces it by
	// correlation id when it arrives.
	rv.log.Append(models.Message{
		Room:      rv.room,
		From:      models.Sender{ID: viewerID, Name: name, Role: role},
		Text:      text,
		Meta:      meta,
		CreatedAt: time.Now(),
		ClientID:  outbound.ClientID,
	})
	return nil
}

// Close releases the room: the join is dropped (refcounted), the pending
// history load is discarded if still in flight, and presence state clears
// with the last leave. Idempotent.
func (rv *RoomView) Close() {
	rv.close.Do(func() {
		rv.sub.Leave()
		<-rv.done
		rv.log.Close()
	})
}
