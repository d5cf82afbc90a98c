package rooms

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusconnect/messaging/models"
	"github.com/campusconnect/messaging/pkg/apperrors"
	"github.com/campusconnect/messaging/presence"
	"github.com/campusconnect/messaging/transport"
)

// newMux builds a multiplexer over a disconnected manager. Joins succeed
// locally without a live transport, and inbound events are fed straight into
// route, so routing behavior can be tested without a socket.
func newMux(t *testing.T) *Multiplexer {
	t.Helper()
	conn := transport.NewManager(transport.Options{Endpoint: "ws://unused"}, zerolog.Nop())
	tracker := presence.NewTracker(2*time.Second, zerolog.Nop())
	return NewMultiplexer(conn, tracker, zerolog.Nop())
}

func envelope(t *testing.T, event string, payload interface{}) transport.Envelope {
	t.Helper()
	env, err := transport.NewEnvelope(event, payload)
	require.NoError(t, err)
	return env
}

func inbound(room models.RoomKey, id, text string) models.Message {
	return models.Message{
		ID:   id,
		Room: room,
		From: models.Sender{ID: "u2", Name: "Bob", Role: "student"},
		Text: text,
		Meta: models.TextMeta(),
	}
}

func TestJoinRejectsMalformedKeys(t *testing.T) {
	m := newMux(t)

	_, err := m.Join(models.RoomKey("nonsense"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRoomKey)
}

func TestRoutingIsScopedToTheRoom(t *testing.T) {
	m := newMux(t)

	club, err := m.Join(models.ClubRoom("7"))
	require.NoError(t, err)
	defer club.Leave()

	project, err := m.Join(models.ProjectRoom("3"))
	require.NoError(t, err)
	defer project.Leave()

	m.route(envelope(t, transport.EventMessageNew, inbound(models.ClubRoom("7"), "m1", "club only")))

	select {
	case msg := <-club.Messages():
		assert.Equal(t, "m1", msg.ID)
	case <-time.After(time.Second):
		t.Fatal("club subscription never received its message")
	}

	select {
	case msg := <-project.Messages():
		t.Fatalf("project subscription leaked message %q", msg.ID)
	default:
	}
}

func TestMessagesForUnopenedRoomsAreDropped(t *testing.T) {
	m := newMux(t)

	sub, err := m.Join(models.ClubRoom("7"))
	require.NoError(t, err)
	defer sub.Leave()

	// Nobody has project:3 open; routing it must not panic or misdeliver
	m.route(envelope(t, transport.EventMessageNew, inbound(models.ProjectRoom("3"), "m9", "stray")))

	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected delivery %q", msg.ID)
	default:
	}
}

func TestSharedJoinEmitsOnceAndLeavesLast(t *testing.T) {
	m := newMux(t)

	first, err := m.Join(models.ClubRoom("7"))
	require.NoError(t, err)
	second, err := m.Join(models.ClubRoom("7"))
	require.NoError(t, err)

	// Both subscriptions see the same traffic
	m.route(envelope(t, transport.EventMessageNew, inbound(models.ClubRoom("7"), "m1", "shared")))
	require.Equal(t, "m1", (<-first.Messages()).ID)
	require.Equal(t, "m1", (<-second.Messages()).ID)

	first.Leave()
	assert.True(t, m.joined(models.ClubRoom("7")), "room must stay joined while a subscription remains")

	second.Leave()
	assert.False(t, m.joined(models.ClubRoom("7")), "last leave releases the room")
}

func TestLeaveIsIdempotent(t *testing.T) {
	m := newMux(t)

	sub, err := m.Join(models.ClubRoom("7"))
	require.NoError(t, err)

	sub.Leave()
	sub.Leave()

	// The channel is closed exactly once
	_, open := <-sub.Messages()
	assert.False(t, open)
}

func TestSendToNeverJoinedRoom(t *testing.T) {
	m := newMux(t)

	err := m.SendMessage(transport.OutboundMessage{Room: models.ClubRoom("7"), Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRoomNotJoined)
}

func TestPresenceEventsFeedTheTracker(t *testing.T) {
	m := newMux(t)

	sub, err := m.Join(models.ClubRoom("7"))
	require.NoError(t, err)
	defer sub.Leave()

	m.route(envelope(t, transport.EventOnlineUsers, transport.OnlineUsersPayload{
		Room:  models.ClubRoom("7"),
		Users: []string{"u1", "u2"},
	}))
	assert.Equal(t, 2, m.tracker.OnlineCount("club:7"))

	m.route(envelope(t, transport.EventUserTyping, transport.UserTypingPayload{
		Room:   models.ClubRoom("7"),
		UserID: "u2",
		Name:   "Bob",
	}))
	assert.Equal(t, []string{"Bob"}, m.tracker.Typing("club:7", "u1"))

	// A message from the typist clears their typing state
	m.route(envelope(t, transport.EventMessageNew, inbound(models.ClubRoom("7"), "m1", "done typing")))
	assert.Empty(t, m.tracker.Typing("club:7", "u1"))
}

func TestPresenceForUnjoinedRoomsIsIgnored(t *testing.T) {
	m := newMux(t)

	m.route(envelope(t, transport.EventOnlineUsers, transport.OnlineUsersPayload{
		Room:  models.ProjectRoom("3"),
		Users: []string{"u1"},
	}))
	assert.Zero(t, m.tracker.OnlineCount("project:3"))
}

func TestUnknownEventsAreIgnored(t *testing.T) {
	m := newMux(t)

	sub, err := m.Join(models.ClubRoom("7"))
	require.NoError(t, err)
	defer sub.Leave()

	m.route(transport.Envelope{Event: "server:maintenance", Data: json.RawMessage(`{"room":"club:7"}`)})

	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected delivery %q", msg.ID)
	default:
	}
}
