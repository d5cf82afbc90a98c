package transport

import (
	"encoding/json"

	"github.com/campusconnect/messaging/models"
)

// Events sent by the client
const (
	EventJoinRoom  = "join-room"
	EventLeaveRoom = "leave-room"
	EventMessage   = "message"
	EventTyping    = "typing"
)

// Events pushed by the server
const (
	EventMessageNew  = "message:new"
	EventOnlineUsers = "online-users"
	EventUserTyping  = "user-typing"
)

// Envelope is the wire frame shared by every event on the connection
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope wraps a payload into an envelope for the given event
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Decode unmarshals the envelope payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// RoomRef is the minimal payload shape needed to route an inbound event:
// every room-scoped server event carries the room key it belongs to.
type RoomRef struct {
	Room models.RoomKey `json:"room"`
}

// JoinPayload is the join-room / leave-room payload
type JoinPayload struct {
	Room models.RoomKey `json:"room"`
}

// OutboundMessage is the client->server message payload
type OutboundMessage struct {
	Room     models.RoomKey `json:"room"`
	Text     string         `json:"text"`
	Meta     models.Meta    `json:"meta"`
	ClientID string         `json:"clientId,omitempty"`
}

// TypingPayload is the client->server typing signal
type TypingPayload struct {
	Room models.RoomKey `json:"room"`
}

// OnlineUsersPayload is the server->client presence snapshot for a room
type OnlineUsersPayload struct {
	Room  models.RoomKey `json:"room"`
	Users []string       `json:"users"`
}

// UserTypingPayload is the server->client typing notification
type UserTypingPayload struct {
	Room   models.RoomKey `json:"room"`
	UserID string         `json:"userId"`
	Name   string         `json:"name"`
}
