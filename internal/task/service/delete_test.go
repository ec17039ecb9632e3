package service

import (
	"context"
	"time"

	"go.uber.org/mock/gomock"

	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/audit"
	"taskdesk/pkg/requestcontext"
)

// =============================================================================
// Two-phase delete
// =============================================================================

func (s *SessionSuite) TestRequestDelete() {
	s.Run("staff cannot request a deletion", func() {
		t := s.task("mine", &s.staff)
		session := s.loadAs(s.staff, t)

		_, err := session.RequestDelete(s.ctx, t.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Len(session.Tasks(), 1)
		s.Contains(s.auditActions(s.staff.ID), string(audit.EventAccessDenied))
	})

	s.Run("request removes nothing and carries the title", func() {
		t := s.task("Close matter", &s.staff)
		session := s.loadAs(s.admin, t)

		req, err := session.RequestDelete(s.ctx, t.ID)
		s.Require().NoError(err)
		s.Equal("Close matter", req.Title)
		s.Equal(s.now.Add(defaultDeleteTTL), req.ExpiresAt)
		s.Len(session.Tasks(), 1)

		_, err = ParseConfirmationToken(req.Token.String())
		s.NoError(err)
	})

	s.Run("unknown task is not found", func() {
		session := s.loadAs(s.admin)
		_, err := session.RequestDelete(s.ctx, id.NewTaskID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *SessionSuite) TestConfirmDelete() {
	s.Run("confirmed delete removes the task once", func() {
		t := s.task("a", &s.staff)
		session := s.loadAs(s.admin, t)
		req, err := session.RequestDelete(s.ctx, t.ID)
		s.Require().NoError(err)
		s.records.EXPECT().DeleteTask(gomock.Any(), t.ID).Return(nil).Times(1)

		s.Require().NoError(session.ConfirmDelete(s.ctx, req.Token))
		s.Empty(session.Tasks())

		err = session.ConfirmDelete(s.ctx, req.Token)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Contains(s.auditActions(s.admin.ID), string(audit.EventTaskDeleted))
	})

	s.Run("failed delete restores the task at its index", func() {
		a := s.task("a", nil)
		b := s.task("b", nil)
		c := s.task("c", nil)
		session := s.loadAs(s.admin, a, b, c)
		before := session.Snapshot()
		req, err := session.RequestDelete(s.ctx, b.ID)
		s.Require().NoError(err)
		s.records.EXPECT().DeleteTask(gomock.Any(), b.ID).Return(errRemote)

		err = session.ConfirmDelete(s.ctx, req.Token)
		s.True(dErrors.HasCode(err, dErrors.CodeRemoteFailure))
		s.Equal(before, session.Snapshot())

		// tokens are single use, even after a failure
		err = session.ConfirmDelete(s.ctx, req.Token)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("expired token is rejected", func() {
		t := s.task("a", nil)
		session := s.loadAs(s.admin, t)
		req, err := session.RequestDelete(s.ctx, t.ID)
		s.Require().NoError(err)

		late := requestcontext.WithTime(context.Background(), s.now.Add(defaultDeleteTTL+time.Second))
		err = session.ConfirmDelete(late, req.Token)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.Len(session.Tasks(), 1)
	})

	s.Run("cancelled token cannot be confirmed", func() {
		t := s.task("a", nil)
		session := s.loadAs(s.admin, t)
		req, err := session.RequestDelete(s.ctx, t.ID)
		s.Require().NoError(err)

		s.True(session.CancelDelete(req.Token))
		s.False(session.CancelDelete(req.Token))

		err = session.ConfirmDelete(s.ctx, req.Token)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Len(session.Tasks(), 1)
	})

	s.Run("reload drops pending confirmations", func() {
		t := s.task("a", nil)
		session := s.loadAs(s.admin, t)
		req, err := session.RequestDelete(s.ctx, t.ID)
		s.Require().NoError(err)

		s.identity.EXPECT().CurrentUser(gomock.Any()).Return(s.admin.ID, true)
		s.identity.EXPECT().GetProfile(gomock.Any(), s.admin.ID).Return(s.admin, nil)
		s.records.EXPECT().ListTasks(gomock.Any(), gomock.Any()).Return(nil, nil)
		s.records.EXPECT().ListProfiles(gomock.Any(), gomock.Any()).Return(nil, nil)
		s.Require().NoError(session.Load(s.ctx))

		s.False(session.CancelDelete(req.Token))
	})
}

func (s *SessionSuite) TestParseConfirmationToken() {
	_, err := ParseConfirmationToken("not-a-token")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}
