package models

// Display roles shown next to a sender's name, in priority order
const (
	RoleClubHead      = "Club Head"
	RoleStaffIncharge = "Staff-Incharge"
	RoleMember        = "Member"
)

// Global roles carried by the session / message sender
const (
	GlobalRoleFaculty = "faculty"
	GlobalRoleStudent = "student"
)

// Capability is the derived read/write/role decision for a (viewer, room)
// pair. It is never persisted; it is recomputed whenever the subject or
// viewer changes, because membership can change between renders. The zero
// value denies everything (fail closed).
type Capability struct {
	CanRead     bool   `json:"canRead"`
	CanWrite    bool   `json:"canWrite"`
	DisplayRole string `json:"displayRole"`
}
