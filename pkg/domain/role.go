package domain

import dErrors "taskdesk/pkg/domain-errors"

// Role decides what slice of the data a profile sees and which mutations it may
// issue. Invariant: a profile holds exactly one role at a time.
type Role string

const (
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

var validRoles = map[Role]bool{
	RoleStaff: true,
	RoleAdmin: true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool  { return validRoles[r] }
func (r Role) IsAdmin() bool  { return r == RoleAdmin }
func (r Role) String() string { return string(r) }
