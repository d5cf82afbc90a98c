// Package access computes the per-(viewer, room) capability from the room
// subject's relationship graph. Relationship fields may arrive as bare
// identifiers or as embedded objects; all of them are normalized to string
// ids by models.Ref before any comparison, never ad hoc per call site.
package access

import (
	"github.com/campusconnect/messaging/models"
)

// Resolve computes the capability for viewerID against the room's subject.
//
// Display role priority, first match wins: head, faculty, member, then the
// fallback from the viewer's global role, then empty. Write capability is
// granted iff the viewer is head, faculty or a member. A nil subject fails
// closed: the subject may simply not be loaded yet, and an unloaded room
// must never be writable.
//
// Resolve is a pure function of its inputs: identical (subject, viewer)
// pairs always produce identical capabilities.
func Resolve(subject *models.Subject, viewerID string) models.Capability {
	return ResolveFor(subject, viewerID, "")
}

// ResolveFor is Resolve with the viewer's global role available for the
// display-role fallback ("faculty" or "student"). The fallback never grants
// write access; it only labels viewers the relationship graph does not cover.
func ResolveFor(subject *models.Subject, viewerID, globalRole string) models.Capability {
	if subject == nil || viewerID == "" {
		return models.Capability{}
	}

	capability := models.Capability{}

	switch {
	case subject.Head.Is(viewerID):
		capability.DisplayRole = models.RoleClubHead
		capability.CanWrite = true
	case subject.Faculty.Is(viewerID):
		capability.DisplayRole = models.RoleStaffIncharge
		capability.CanWrite = true
	case isMember(subject, viewerID):
		capability.DisplayRole = models.RoleMember
		capability.CanWrite = true
	default:
		capability.DisplayRole = fallbackRole(globalRole)
	}

	capability.CanRead = capability.CanWrite
	return capability
}

// ResolveGeneral computes the capability for the public general room, which
// has no subject: everyone may read, and any signed-in viewer may write.
func ResolveGeneral(viewerID, globalRole string) models.Capability {
	return models.Capability{
		CanRead:     true,
		CanWrite:    viewerID != "",
		DisplayRole: fallbackRole(globalRole),
	}
}

// SenderRole labels a message sender inside a room using the same priority
// as the viewer's own capability, falling back on the sender's global role
// carried by the message itself.
func SenderRole(subject *models.Subject, sender models.Sender) string {
	if subject != nil {
		switch {
		case subject.Head.Is(sender.ID):
			return models.RoleClubHead
		case subject.Faculty.Is(sender.ID):
			return models.RoleStaffIncharge
		case isMember(subject, sender.ID):
			return models.RoleMember
		}
	}
	return fallbackRole(sender.Role)
}

func isMember(subject *models.Subject, viewerID string) bool {
	for _, member := range subject.Members {
		if member.Is(viewerID) {
			return true
		}
	}
	return false
}

func fallbackRole(globalRole string) string {
	switch globalRole {
	case models.GlobalRoleFaculty:
		return models.RoleStaffIncharge
	case models.GlobalRoleStudent:
		return models.RoleMember
	}
	return ""
}
