package models

import (
	"encoding/json"
	"strconv"
)

// SubjectKind distinguishes the entity a room is scoped to
type SubjectKind string

const (
	SubjectClub    SubjectKind = "club"
	SubjectProject SubjectKind = "project"
)

// Ref is a reference to a user that may arrive on the wire either as a bare
// identifier (string or number) or as an embedded object carrying one.
// All comparisons go through the string-normalized ID.
type Ref struct {
	id string
}

// NewRef builds a Ref from a bare identifier
func NewRef(id string) Ref {
	return Ref{id: id}
}

// ID returns the string-normalized identifier, empty if the reference is absent
func (r Ref) ID() string {
	return r.id
}

// IsZero reports whether the reference is absent
func (r Ref) IsZero() bool {
	return r.id == ""
}

// Is reports whether the reference identifies the given viewer
func (r Ref) Is(viewerID string) bool {
	return r.id != "" && r.id == viewerID
}

// UnmarshalJSON accepts "abc", 42, {"_id": ...}, {"id": ...} and null
func (r *Ref) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.id = s
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		r.id = n.String()
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		// null or an unrecognized scalar; treat as absent
		r.id = ""
		return nil
	}

	raw, ok := obj["_id"]
	if !ok {
		raw, ok = obj["id"]
	}
	if !ok {
		r.id = ""
		return nil
	}

	if err := json.Unmarshal(raw, &s); err == nil {
		r.id = s
		return nil
	}
	if err := json.Unmarshal(raw, &n); err == nil {
		r.id = n.String()
		return nil
	}
	r.id = ""
	return nil
}

// MarshalJSON emits the bare identifier form
func (r Ref) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(r.id)), nil
}

// Subject is the external entity (club or project) a chat room is scoped to.
// Relationship fields are already normalized to Refs by the decoder; Head is
// zero for projects.
type Subject struct {
	Kind    SubjectKind
	ID      string
	Head    Ref
	Faculty Ref
	Members []Ref
}

// MemberIDs returns the string-normalized member identifiers
func (s *Subject) MemberIDs() []string {
	ids := make([]string, 0, len(s.Members))
	for _, m := range s.Members {
		if !m.IsZero() {
			ids = append(ids, m.ID())
		}
	}
	return ids
}
