package models

import (
	"encoding/json"
	"time"
)

// MetaKind tags the payload variant carried by a message
type MetaKind string

const (
	MetaText    MetaKind = "text"
	MetaImage   MetaKind = "image"
	MetaVideo   MetaKind = "video"
	MetaReply   MetaKind = "reply"
	MetaUnknown MetaKind = "unknown"
)

// ReplySnapshot is the denormalized copy of a replied-to message captured at
// reply time. It deliberately does not track later changes to the original.
type ReplySnapshot struct {
	MessageID  string `json:"messageId"`
	Text       string `json:"text"`
	SenderName string `json:"senderName"`
}

// Meta is the tagged message payload: plain text, an image/video attachment
// (the message text holds the media URL), or a threaded reply. Payload shapes
// this client does not recognize are preserved as MetaUnknown rather than
// dropped, so newer servers stay renderable.
type Meta struct {
	Kind  MetaKind
	Reply *ReplySnapshot

	// raw preserves the wire payload for MetaUnknown
	raw json.RawMessage
}

// TextMeta returns the plain-text payload tag
func TextMeta() Meta {
	return Meta{Kind: MetaText}
}

// AttachmentMeta returns an image or video payload tag
func AttachmentMeta(kind MetaKind) Meta {
	return Meta{Kind: kind}
}

// ReplyMeta returns a threaded-reply payload carrying the snapshot
func ReplyMeta(snapshot ReplySnapshot) Meta {
	return Meta{Kind: MetaReply, Reply: &snapshot}
}

// UnmarshalJSON maps the open wire payload onto the tagged variant
func (m *Meta) UnmarshalJSON(data []byte) error {
	var obj struct {
		Type  string         `json:"type"`
		Reply *ReplySnapshot `json:"reply"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		m.Kind = MetaUnknown
		m.raw = append(json.RawMessage(nil), data...)
		return nil
	}

	switch {
	case obj.Reply != nil:
		m.Kind = MetaReply
		m.Reply = obj.Reply
	case obj.Type == "image":
		m.Kind = MetaImage
	case obj.Type == "video":
		m.Kind = MetaVideo
	case obj.Type == "" || obj.Type == "text":
		m.Kind = MetaText
	default:
		m.Kind = MetaUnknown
		m.raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// MarshalJSON emits the wire payload for the variant
func (m Meta) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case MetaReply:
		return json.Marshal(struct {
			Reply *ReplySnapshot `json:"reply"`
		}{Reply: m.Reply})
	case MetaImage, MetaVideo:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{Type: string(m.Kind)})
	case MetaUnknown:
		if len(m.raw) > 0 {
			return m.raw, nil
		}
		return []byte("{}"), nil
	default:
		return []byte("{}"), nil
	}
}

// Sender identifies who a message came from
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// UnmarshalJSON accepts both "id" and the store's "_id" spelling
func (s *Sender) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID      Ref    `json:"id"`
		MongoID Ref    `json:"_id"`
		Name    string `json:"name"`
		Role    string `json:"role"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ID = aux.MongoID.ID()
	if s.ID == "" {
		s.ID = aux.ID.ID()
	}
	s.Name = aux.Name
	s.Role = aux.Role
	return nil
}

// Message is one chat message. Messages are immutable once created; derived
// state (read status, presence) lives in separate maps keyed by id, never on
// the message itself.
type Message struct {
	ID        string    `json:"id"`
	Room      RoomKey   `json:"room"`
	From      Sender    `json:"from"`
	Text      string    `json:"text"`
	Meta      Meta      `json:"meta"`
	CreatedAt time.Time `json:"createdAt"`

	// ClientID is the locally generated correlation id on outbound sends,
	// echoed back by the server so the local copy can be matched up.
	ClientID string `json:"clientId,omitempty"`
}

// UnmarshalJSON accepts both "id" and the store's "_id" spelling
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var aux struct {
		alias
		MongoID Ref `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.alias)
	if m.ID == "" {
		m.ID = aux.MongoID.ID()
	}
	return nil
}
