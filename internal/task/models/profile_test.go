package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "taskdesk/pkg/domain"
	pstrings "taskdesk/pkg/platform/strings"
)

type ProfileSuite struct {
	suite.Suite
}

func TestProfileSuite(t *testing.T) {
	suite.Run(t, new(ProfileSuite))
}

func (s *ProfileSuite) TestDisplay() {
	s.Run("display name prefers full name", func() {
		p := Profile{Email: "ada@example.com", FullName: pstrings.Ptr("Ada Lovelace")}
		s.Equal("Ada Lovelace", p.DisplayName())
	})

	s.Run("display name falls back to email", func() {
		p := Profile{Email: "ada@example.com", FullName: pstrings.Ptr("  ")}
		s.Equal("ada@example.com", p.DisplayName())
	})

	s.Run("initials from full name are capped at two", func() {
		p := Profile{FullName: pstrings.Ptr("ada byron lovelace")}
		s.Equal("AB", p.Initials())
	})

	s.Run("initials fall back to email then U", func() {
		s.Equal("Z", Profile{Email: "zed@example.com"}.Initials())
		s.Equal("U", Profile{}.Initials())
	})
}

func (s *ProfileSuite) TestAsAssignee() {
	p := Profile{
		ID:        id.NewProfileID(),
		Email:     "ada@example.com",
		FullName:  pstrings.Ptr("Ada"),
		Role:      id.RoleAdmin,
		CreatedAt: time.Now(),
	}
	a := p.AsAssignee()
	s.Equal(p.ID, a.ID)
	s.Equal(id.RoleAdmin, a.Role)

	*a.FullName = "changed"
	s.Equal("Ada", *p.FullName)
}
