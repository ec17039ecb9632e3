package models

import (
	"strings"
	"time"
	"unicode"

	id "taskdesk/pkg/domain"
	pstrings "taskdesk/pkg/platform/strings"
)

// Profile is the identity record that controls visibility and mutation rights.
//
// Invariants:
//   - Role is exactly one of staff or admin
//   - Role is the only field mutated after creation
//   - Profiles are never deleted by this module
type Profile struct {
	ID        id.ProfileID `json:"id"`
	Email     string       `json:"email"`
	FullName  *string      `json:"full_name"`
	AvatarURL *string      `json:"avatar_url"`
	Role      id.Role      `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
}

func (p Profile) IsAdmin() bool {
	return p.Role.IsAdmin()
}

// DisplayName prefers the full name and falls back to the email address.
func (p Profile) DisplayName() string {
	if name := pstrings.FirstNonEmpty(p.FullName); name != "" {
		return name
	}
	return p.Email
}

// Initials derives up to two avatar letters from the full name, then the
// email, then "U".
func (p Profile) Initials() string {
	if p.FullName != nil && !pstrings.IsBlank(*p.FullName) {
		letters := make([]rune, 0, 2)
		for _, part := range strings.Fields(*p.FullName) {
			letters = append(letters, unicode.ToUpper([]rune(part)[0]))
			if len(letters) == 2 {
				break
			}
		}
		return string(letters)
	}
	if p.Email != "" {
		return strings.ToUpper(string([]rune(p.Email)[0]))
	}
	return "U"
}

// AsAssignee projects the profile into the read-only join shape carried by tasks.
func (p Profile) AsAssignee() *Assignee {
	return &Assignee{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  cloneString(p.FullName),
		AvatarURL: cloneString(p.AvatarURL),
		Role:      p.Role,
	}
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	p.FullName = cloneString(p.FullName)
	p.AvatarURL = cloneString(p.AvatarURL)
	return p
}
