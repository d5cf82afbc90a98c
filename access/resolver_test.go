package access

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/campusconnect/messaging/models"
)

func clubSubject(head, faculty string, members ...string) *models.Subject {
	s := &models.Subject{
		Kind:    models.SubjectClub,
		ID:      "c1",
		Head:    models.NewRef(head),
		Faculty: models.NewRef(faculty),
	}
	for _, m := range members {
		s.Members = append(s.Members, models.NewRef(m))
	}
	return s
}

func TestResolveRolePriority(t *testing.T) {
	subject := clubSubject("u1", "u5", "u1", "u2")

	cases := []struct {
		name     string
		viewer   string
		role     string
		canWrite bool
		display  string
	}{
		{"head wins over member", "u1", "", true, models.RoleClubHead},
		{"faculty", "u5", "", true, models.RoleStaffIncharge},
		{"plain member", "u2", "", true, models.RoleMember},
		{"outsider", "u9", "", false, ""},
		{"outsider with faculty fallback", "u9", "faculty", false, models.RoleStaffIncharge},
		{"outsider with student fallback", "u9", "student", false, models.RoleMember},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			capability := ResolveFor(subject, tc.viewer, tc.role)
			if capability.CanWrite != tc.canWrite {
				t.Errorf("CanWrite = %v, want %v", capability.CanWrite, tc.canWrite)
			}
			if capability.DisplayRole != tc.display {
				t.Errorf("DisplayRole = %q, want %q", capability.DisplayRole, tc.display)
			}
		})
	}
}

func TestResolveOutsiderDeniedCompletely(t *testing.T) {
	subject := clubSubject("u1", "u5", "u1", "u2")

	capability := Resolve(subject, "u9")
	want := models.Capability{}
	if capability != want {
		t.Errorf("Resolve(outsider) = %+v, want zero capability", capability)
	}
}

func TestResolveNilSubjectFailsClosed(t *testing.T) {
	capability := Resolve(nil, "u1")
	if capability.CanRead || capability.CanWrite {
		t.Errorf("nil subject must deny everything, got %+v", capability)
	}
}

func TestResolveIsPure(t *testing.T) {
	subject := clubSubject("u1", "u5", "u2")

	first := ResolveFor(subject, "u2", "student")
	second := ResolveFor(subject, "u2", "student")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical inputs produced %+v then %+v", first, second)
	}
}

// The relationship fields may arrive as bare ids or embedded objects; the
// decision must not depend on which shape the server picked.
func TestResolveNormalizesRelationshipShapes(t *testing.T) {
	payloads := []string{
		`{"clubHead": "u1", "faculty": "u5", "members": ["u1", "u2"]}`,
		`{"clubHead": {"_id": "u1", "name": "Alice"}, "faculty": {"id": "u5"}, "members": [{"_id": "u1"}, "u2"]}`,
		`{"clubHead": {"id": "u1"}, "faculty": "u5", "members": ["u1", {"id": "u2", "name": "Bob"}]}`,
	}

	for i, payload := range payloads {
		var wire struct {
			ClubHead models.Ref   `json:"clubHead"`
			Faculty  models.Ref   `json:"faculty"`
			Members  []models.Ref `json:"members"`
		}
		if err := json.Unmarshal([]byte(payload), &wire); err != nil {
			t.Fatalf("payload %d: %v", i, err)
		}
		subject := &models.Subject{
			Kind:    models.SubjectClub,
			Head:    wire.ClubHead,
			Faculty: wire.Faculty,
			Members: wire.Members,
		}

		if got := Resolve(subject, "u1").DisplayRole; got != models.RoleClubHead {
			t.Errorf("payload %d: viewer u1 role = %q, want %q", i, got, models.RoleClubHead)
		}
		if got := Resolve(subject, "u2").DisplayRole; got != models.RoleMember {
			t.Errorf("payload %d: viewer u2 role = %q, want %q", i, got, models.RoleMember)
		}
		if !Resolve(subject, "u2").CanWrite {
			t.Errorf("payload %d: member u2 must be writable", i)
		}
	}
}

func TestResolveProjectSubjectHasNoHead(t *testing.T) {
	subject := &models.Subject{
		Kind:    models.SubjectProject,
		ID:      "p3",
		Faculty: models.NewRef("u5"),
		Members: []models.Ref{models.NewRef("u2")},
	}

	if got := Resolve(subject, "u5").DisplayRole; got != models.RoleStaffIncharge {
		t.Errorf("faculty role = %q, want %q", got, models.RoleStaffIncharge)
	}
	if got := Resolve(subject, "u2").DisplayRole; got != models.RoleMember {
		t.Errorf("member role = %q, want %q", got, models.RoleMember)
	}
}

func TestResolveGeneral(t *testing.T) {
	anon := ResolveGeneral("", "")
	if !anon.CanRead || anon.CanWrite {
		t.Errorf("anonymous general capability = %+v, want read-only", anon)
	}

	signed := ResolveGeneral("u2", "student")
	if !signed.CanRead || !signed.CanWrite {
		t.Errorf("signed-in general capability = %+v, want read+write", signed)
	}
	if signed.DisplayRole != models.RoleMember {
		t.Errorf("DisplayRole = %q, want %q", signed.DisplayRole, models.RoleMember)
	}
}

func TestSenderRoleFallsBackToGlobalRole(t *testing.T) {
	subject := clubSubject("u1", "u5", "u2")

	sender := models.Sender{ID: "u9", Name: "Visitor", Role: "faculty"}
	if got := SenderRole(subject, sender); got != models.RoleStaffIncharge {
		t.Errorf("SenderRole = %q, want %q", got, models.RoleStaffIncharge)
	}

	// Without a subject the global role is all there is
	if got := SenderRole(nil, models.Sender{ID: "u2", Role: "student"}); got != models.RoleMember {
		t.Errorf("SenderRole without subject = %q, want %q", got, models.RoleMember)
	}
}
