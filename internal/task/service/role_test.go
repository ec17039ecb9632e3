package service

import (
	"go.uber.org/mock/gomock"

	"taskdesk/internal/task/models"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/audit"
)

// =============================================================================
// Role mutation
// =============================================================================

func (s *SessionSuite) TestSetRole() {
	roleOf := func(profiles []models.Profile, profileID id.ProfileID) id.Role {
		for _, p := range profiles {
			if p.ID == profileID {
				return p.Role
			}
		}
		return ""
	}

	s.Run("admin cannot demote themselves", func() {
		session := s.loadAs(s.admin)
		before := session.Profiles()

		err := session.SetRole(s.ctx, s.admin.ID, id.RoleStaff)
		s.True(dErrors.HasCode(err, dErrors.CodeSelfDemotion))
		s.Equal(before, session.Profiles())
		s.Equal("You cannot remove your own admin role.", Notice(err))
	})

	s.Run("staff setting themselves to staff is still a self-demotion", func() {
		session := s.loadAs(s.staff)
		before := session.Profiles()

		err := session.SetRole(s.ctx, s.staff.ID, id.RoleStaff)
		s.True(dErrors.HasCode(err, dErrors.CodeSelfDemotion))
		s.Equal(before, session.Profiles())
		profile, ok := session.Profile()
		s.Require().True(ok)
		s.Equal(id.RoleStaff, profile.Role)
	})

	s.Run("staff promoting themselves is forbidden", func() {
		session := s.loadAs(s.staff)
		before := session.Profiles()

		err := session.SetRole(s.ctx, s.staff.ID, id.RoleAdmin)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(before, session.Profiles())
	})

	s.Run("promotion is applied and persisted", func() {
		session := s.loadAs(s.admin)
		s.records.EXPECT().UpdateProfileRole(gomock.Any(), s.staff.ID, id.RoleAdmin).Return(nil)

		s.Require().NoError(session.SetRole(s.ctx, s.staff.ID, id.RoleAdmin))
		s.Equal(id.RoleAdmin, roleOf(session.Profiles(), s.staff.ID))
		s.Contains(s.auditActions(s.admin.ID), string(audit.EventRoleChanged))

		view, err := session.Team(s.ctx, "")
		s.Require().NoError(err)
		s.Equal(2, view.Stats.Admins)
	})

	s.Run("failure restores the previous role", func() {
		session := s.loadAs(s.admin)
		before := session.Profiles()
		s.records.EXPECT().UpdateProfileRole(gomock.Any(), s.other.ID, id.RoleAdmin).Return(errRemote)

		err := session.SetRole(s.ctx, s.other.ID, id.RoleAdmin)
		s.True(dErrors.HasCode(err, dErrors.CodeRemoteFailure))
		s.Equal(before, session.Profiles())
	})

	s.Run("unchanged role is a no-op", func() {
		session := s.loadAs(s.admin)
		s.NoError(session.SetRole(s.ctx, s.other.ID, id.RoleStaff))
	})

	s.Run("staff cannot change roles", func() {
		session := s.loadAs(s.staff)
		err := session.SetRole(s.ctx, s.other.ID, id.RoleAdmin)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown profile is not found", func() {
		session := s.loadAs(s.admin)
		err := session.SetRole(s.ctx, id.NewProfileID(), id.RoleAdmin)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid role is rejected", func() {
		session := s.loadAs(s.admin)
		err := session.SetRole(s.ctx, s.other.ID, id.Role("owner"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
