package auth

import (
	"strings"

	"beaconattend/internal/apperr"
)

// Role is the kind of account signing in.
type Role string

const (
	RoleMentor  Role = "MENTOR"
	RoleTeacher Role = "SUBJECT_TEACHER"
	RoleStudent Role = "STUDENT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleMentor, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

func (r Role) prefix() string {
	switch r {
	case RoleMentor:
		return "M_"
	case RoleTeacher:
		return "T_"
	default:
		return "S_"
	}
}

// Identity is a signed-in account.
type Identity struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Email   string `json:"email"`
	RollNo  string `json:"rollNo,omitempty"`
	Section string `json:"section,omitempty"`
}

// Directory resolves emails to identities using static staff lists and the
// institutional mail domains.
type Directory struct {
	mentors       map[string]struct{}
	teachers      map[string]struct{}
	staffDomain   string
	studentDomain string
}

// NewDirectory builds a directory. Emails are matched case-insensitively.
func NewDirectory(mentors, teachers []string, staffDomain, studentDomain string) *Directory {
	return &Directory{
		mentors:       toSet(mentors),
		teachers:      toSet(teachers),
		staffDomain:   strings.ToLower(staffDomain),
		studentDomain: strings.ToLower(studentDomain),
	}
}

// Resolve checks that email may sign in as role. Students are resolved by
// domain only; enrollment is checked by the caller.
func (d *Directory) Resolve(role Role, email string) (Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return Identity{}, apperr.Clone(apperr.ErrValidation, "email required")
	}

	switch role {
	case RoleMentor:
		if !strings.HasSuffix(email, d.staffDomain) {
			return Identity{}, apperr.Clone(apperr.ErrUnauthorized, "Faculty must use "+d.staffDomain+" email")
		}
		if _, ok := d.mentors[email]; !ok {
			return Identity{}, apperr.Clone(apperr.ErrUnauthorized, "Unauthorized mentor email")
		}
	case RoleTeacher:
		if !strings.HasSuffix(email, d.staffDomain) {
			return Identity{}, apperr.Clone(apperr.ErrUnauthorized, "Faculty must use "+d.staffDomain+" email")
		}
		if _, ok := d.teachers[email]; !ok {
			return Identity{}, apperr.Clone(apperr.ErrUnauthorized, "Unauthorized subject teacher email")
		}
	case RoleStudent:
		if !strings.HasSuffix(email, d.studentDomain) {
			return Identity{}, apperr.Clone(apperr.ErrUnauthorized, "Students must use "+d.studentDomain+" email")
		}
	default:
		return Identity{}, apperr.Clone(apperr.ErrValidation, "unknown role")
	}

	return Identity{ID: role.prefix() + strings.SplitN(email, "@", 2)[0], Role: role, Email: email}, nil
}

func toSet(emails []string) map[string]struct{} {
	out := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		out[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return out
}
