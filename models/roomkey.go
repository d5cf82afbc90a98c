package models

import (
	"strings"

	"github.com/campusconnect/messaging/pkg/apperrors"
)

// Room kinds
const (
	RoomKindClub    = "club"
	RoomKindProject = "project"
	RoomKindGeneral = "room"
)

// GeneralRoom is the public campus-wide chat room
const GeneralRoom RoomKey = "room:general"

// RoomKey is the composite identifier scoping a conversation: "kind:subjectId".
// Rooms have no identity beyond the key; the external store owns durable rooms.
type RoomKey string

// ClubRoom returns the room key for a club chat
func ClubRoom(clubID string) RoomKey {
	return RoomKey(RoomKindClub + ":" + clubID)
}

// ProjectRoom returns the room key for a project discussion
func ProjectRoom(projectID string) RoomKey {
	return RoomKey(RoomKindProject + ":" + projectID)
}

// Kind returns the room kind ("club", "project", "room")
func (k RoomKey) Kind() string {
	kind, _, _ := strings.Cut(string(k), ":")
	return kind
}

// SubjectID returns the subject identifier part of the key
func (k RoomKey) SubjectID() string {
	_, id, _ := strings.Cut(string(k), ":")
	return id
}

// Validate checks that the key has the "kind:subjectId" shape
func (k RoomKey) Validate() error {
	kind, id, ok := strings.Cut(string(k), ":")
	if !ok || kind == "" || id == "" {
		return apperrors.NewCustomError(apperrors.ErrInvalidRoomKey, "room key must have the form kind:subjectId, got "+string(k))
	}
	switch kind {
	case RoomKindClub, RoomKindProject, RoomKindGeneral:
		return nil
	}
	return apperrors.NewCustomError(apperrors.ErrInvalidRoomKey, "unknown room kind "+kind)
}

func (k RoomKey) String() string {
	return string(k)
}
