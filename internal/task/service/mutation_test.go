package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/mock/gomock"

	"taskdesk/internal/task/models"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/audit"
	pstrings "taskdesk/pkg/platform/strings"
	"taskdesk/pkg/requestcontext"
)

// =============================================================================
// Create
// =============================================================================

func (s *SessionSuite) TestCreate() {
	s.Run("blank title never reaches the record service", func() {
		session := s.loadAs(s.admin)
		before := session.Snapshot()

		_, err := session.Create(s.ctx, models.TaskInput{Title: "   "})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(before, session.Snapshot())
	})

	s.Run("staff task defaults to self and normalizes optionals", func() {
		session := s.loadAs(s.staff)
		var sent models.NewTask
		s.records.EXPECT().CreateTask(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, payload models.NewTask) (models.Task, error) {
				sent = payload
				return models.Task{
					ID:         id.NewTaskID(),
					Title:      payload.Title,
					Status:     payload.Status,
					Priority:   payload.Priority,
					AssignedTo: payload.AssignedTo,
					CreatedBy:  &payload.CreatedBy,
					Assignee:   s.staff.AsAssignee(),
					CreatedAt:  s.now,
					UpdatedAt:  s.now,
				}, nil
			})

		created, err := session.Create(s.ctx, models.TaskInput{
			Title:       "  Draft engagement letter ",
			Description: pstrings.Ptr(""),
			ClientName:  pstrings.Ptr(" Acme "),
		})
		s.Require().NoError(err)

		s.Equal("Draft engagement letter", sent.Title)
		s.Nil(sent.Description)
		s.Equal("Acme", *sent.ClientName)
		s.Equal(s.staff.ID, *sent.AssignedTo)
		s.Equal(s.staff.ID, sent.CreatedBy)
		s.Equal(id.StatusPending, sent.Status)
		s.Equal(id.PriorityMedium, sent.Priority)
		s.Nil(sent.CompletedAt)

		tasks := session.Tasks()
		s.Require().Len(tasks, 1)
		s.Equal(created.ID, tasks[0].ID)
		s.Require().NotNil(tasks[0].Assignee)
		s.Equal(s.staff.ID, tasks[0].Assignee.ID)
		s.Contains(s.auditActions(s.staff.ID), string(audit.EventTaskCreated))
	})

	s.Run("staff forcing another assignee is forbidden", func() {
		session := s.loadAs(s.staff)
		_, err := session.Create(s.ctx, models.TaskInput{Title: "x", AssignedTo: &s.other.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Empty(session.Tasks())
	})

	s.Run("admin task defaults to the admin", func() {
		session := s.loadAs(s.admin)
		s.records.EXPECT().CreateTask(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, payload models.NewTask) (models.Task, error) {
				return models.Task{ID: id.NewTaskID(), Title: payload.Title, AssignedTo: payload.AssignedTo}, nil
			})
		created, err := session.Create(s.ctx, models.TaskInput{Title: "x"})
		s.Require().NoError(err)
		s.Require().NotNil(created.AssignedTo)
		s.Equal(s.admin.ID, *created.AssignedTo)
	})

	s.Run("admin may create unassigned completed tasks", func() {
		session := s.loadAs(s.admin)
		s.records.EXPECT().CreateTask(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, payload models.NewTask) (models.Task, error) {
				s.Nil(payload.AssignedTo)
				s.Require().NotNil(payload.CompletedAt)
				s.Equal(s.now, *payload.CompletedAt)
				return models.Task{ID: id.NewTaskID(), Title: payload.Title, Status: payload.Status, CompletedAt: payload.CompletedAt}, nil
			})
		_, err := session.Create(s.ctx, models.TaskInput{Title: "Archive", Status: id.StatusCompleted, Unassigned: true})
		s.Require().NoError(err)
	})

	s.Run("remote failure removes the provisional task", func() {
		existing := s.task("existing", &s.staff)
		session := s.loadAs(s.admin, existing)
		before := session.Snapshot()
		s.records.EXPECT().CreateTask(gomock.Any(), gomock.Any()).Return(models.Task{}, errRemote)

		_, err := session.Create(s.ctx, models.TaskInput{Title: "doomed"})
		s.True(dErrors.HasCode(err, dErrors.CodeRemoteFailure))
		s.Equal(before, session.Snapshot())
		s.Contains(s.auditActions(s.admin.ID), string(audit.EventMutationRolledBack))
	})

	s.Run("provisional task is visible while the call is in flight", func() {
		session := s.loadAs(s.admin)
		s.records.EXPECT().CreateTask(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, payload models.NewTask) (models.Task, error) {
				tasks := session.Tasks()
				s.Require().Len(tasks, 1)
				s.Equal(payload.Title, tasks[0].Title)
				return models.Task{ID: id.NewTaskID(), Title: payload.Title}, nil
			})
		_, err := session.Create(s.ctx, models.TaskInput{Title: "optimistic"})
		s.Require().NoError(err)
	})
}

// =============================================================================
// Update
// =============================================================================

func (s *SessionSuite) TestUpdate() {
	s.Run("failed update leaves the collection deep-equal", func() {
		a := s.task("a", &s.staff)
		b := s.task("b", &s.other)
		b.Description = pstrings.Ptr("details")
		session := s.loadAs(s.admin, a, b)
		before := session.Snapshot()
		s.records.EXPECT().UpdateTask(gomock.Any(), b.ID, gomock.Any()).Return(models.Task{}, errRemote)

		_, err := session.Update(s.ctx, b.ID, models.TaskInput{
			Title:      "renamed",
			Status:     id.StatusCompleted,
			Priority:   id.PriorityCritical,
			AssignedTo: &s.staff.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeRemoteFailure))
		s.Equal(before, session.Snapshot())
	})

	s.Run("commit swaps in the server record and keeps created_by", func() {
		t := s.task("a", &s.staff)
		session := s.loadAs(s.admin, t)
		s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.TaskID, patch models.TaskPatch) (models.Task, error) {
				s.Require().NotNil(patch.Details)
				s.Equal(s.other.ID, *patch.Details.AssignedTo)
				server := t.Clone()
				server.Title = patch.Details.Title
				server.AssignedTo = patch.Details.AssignedTo
				server.Assignee = s.other.AsAssignee()
				server.UpdatedAt = s.now
				return server, nil
			})

		updated, err := session.Update(s.ctx, t.ID, models.TaskInput{Title: "renamed", AssignedTo: &s.other.ID})
		s.Require().NoError(err)
		s.Equal(s.admin.ID, *updated.CreatedBy)

		stored, err := session.Task(t.ID)
		s.Require().NoError(err)
		s.Equal("renamed", stored.Title)
		s.Equal(s.other.ID, stored.Assignee.ID)
	})

	s.Run("status change inside an edit keeps completed_at consistent", func() {
		t := s.task("a", &s.staff)
		session := s.loadAs(s.staff, t)
		s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.TaskID, patch models.TaskPatch) (models.Task, error) {
				s.Equal(id.StatusCompleted, patch.Status)
				s.Require().NotNil(patch.CompletedAt)
				server := t.Clone()
				server.ApplyStatus(patch.Status, *patch.CompletedAt)
				return server, nil
			})

		updated, err := session.Update(s.ctx, t.ID, models.TaskInput{Title: "a", Status: id.StatusCompleted})
		s.Require().NoError(err)
		s.NotNil(updated.CompletedAt)
	})

	s.Run("staff cannot reassign their task", func() {
		t := s.task("a", &s.staff)
		session := s.loadAs(s.staff, t)
		_, err := session.Update(s.ctx, t.ID, models.TaskInput{Title: "a", AssignedTo: &s.other.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin edit of unassigned task", func() {
		t := s.task("loose", nil)
		session := s.loadAs(s.admin, t)
		s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).Return(t, nil)
		_, err := session.Update(s.ctx, t.ID, models.TaskInput{Title: "loose"})
		s.NoError(err)
	})

	s.Run("unknown task is not found", func() {
		session := s.loadAs(s.admin)
		_, err := session.Update(s.ctx, id.NewTaskID(), models.TaskInput{Title: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// ChangeStatus
// =============================================================================

func (s *SessionSuite) TestChangeStatus() {
	s.Run("completing sets completed_at and reopening clears it", func() {
		t := s.task("a", &s.staff)
		session := s.loadAs(s.staff, t)
		s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.TaskID, patch models.TaskPatch) (models.Task, error) {
				s.Nil(patch.Details)
				s.Equal(patch.Status == id.StatusCompleted, patch.CompletedAt != nil)
				return models.Task{}, nil
			}).Times(2)

		done, err := session.ChangeStatus(s.ctx, t.ID, id.StatusCompleted)
		s.Require().NoError(err)
		s.Equal(s.now, *done.CompletedAt)

		reopened, err := session.ChangeStatus(s.ctx, t.ID, id.StatusInProgress)
		s.Require().NoError(err)
		s.Nil(reopened.CompletedAt)
	})

	s.Run("second identical call is a no-op", func() {
		t := s.task("a", &s.staff)
		session := s.loadAs(s.staff, t)
		s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).Return(models.Task{}, nil).Times(1)

		first, err := session.ChangeStatus(s.ctx, t.ID, id.StatusCompleted)
		s.Require().NoError(err)
		afterFirst := session.Snapshot()

		later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
		second, err := session.ChangeStatus(later, t.ID, id.StatusCompleted)
		s.Require().NoError(err)
		s.Equal(first, second)
		s.Equal(afterFirst, session.Snapshot())
	})

	s.Run("failure restores the prior status", func() {
		t := s.task("a", &s.staff)
		session := s.loadAs(s.staff, t)
		before := session.Snapshot()
		s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).Return(models.Task{}, errRemote)

		_, err := session.ChangeStatus(s.ctx, t.ID, id.StatusCompleted)
		s.True(dErrors.HasCode(err, dErrors.CodeRemoteFailure))
		s.Equal(before, session.Snapshot())
	})

	s.Run("task outside the staff collection is not found", func() {
		foreign := s.task("theirs", &s.other)
		session := s.loadAs(s.staff, s.task("mine", &s.staff))
		_, err := session.ChangeStatus(s.ctx, foreign.ID, id.StatusCompleted)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid status is rejected", func() {
		t := s.task("a", &s.staff)
		session := s.loadAs(s.staff, t)
		_, err := session.ChangeStatus(s.ctx, t.ID, id.TaskStatus("overdue"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// blockingCall parks a mocked remote call until release is closed.
type blockingCall struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingCall() blockingCall {
	return blockingCall{started: make(chan struct{}), release: make(chan struct{})}
}

func (b blockingCall) wait() {
	close(b.started)
	<-b.release
}

// TestOverlappingMutations runs several mutations on the same record with
// their remote calls resolving out of order.
func (s *SessionSuite) TestOverlappingMutations() {
	s.Run("stale rollback does not overwrite a newer commit", func() {
		t := s.task("contract review", &s.staff)
		session := s.loadAs(s.admin, t)
		status := newBlockingCall()

		gomock.InOrder(
			s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ id.TaskID, _ models.TaskPatch) (models.Task, error) {
					status.wait()
					return models.Task{}, errRemote
				}),
			s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ id.TaskID, patch models.TaskPatch) (models.Task, error) {
					server := t.Clone()
					server.Title = patch.Details.Title
					server.ApplyStatus(patch.Status, s.now)
					return server, nil
				}),
		)

		var wg sync.WaitGroup
		var statusErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, statusErr = session.ChangeStatus(s.ctx, t.ID, id.StatusCompleted)
		}()

		<-status.started
		_, err := session.Update(s.ctx, t.ID, models.TaskInput{Title: "contract review v2", Status: id.StatusCompleted})
		s.Require().NoError(err)

		close(status.release)
		wg.Wait()
		s.True(dErrors.HasCode(statusErr, dErrors.CodeRemoteFailure))

		stored, err := session.Task(t.ID)
		s.Require().NoError(err)
		s.Equal("contract review v2", stored.Title)
		s.Equal(id.StatusCompleted, stored.Status)
		s.NotNil(stored.CompletedAt)
		s.Contains(s.auditActions(s.admin.ID), string(audit.EventStaleOutcome))
	})

	s.Run("two failed edits leave the confirmed record", func() {
		t := s.task("orig", &s.staff)
		session := s.loadAs(s.admin, t)
		before := session.Snapshot()
		first, second := newBlockingCall(), newBlockingCall()

		gomock.InOrder(
			s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ id.TaskID, _ models.TaskPatch) (models.Task, error) {
					first.wait()
					return models.Task{}, errRemote
				}),
			s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ id.TaskID, _ models.TaskPatch) (models.Task, error) {
					second.wait()
					return models.Task{}, errRemote
				}),
		)

		firstDone, secondDone := make(chan error, 1), make(chan error, 1)
		go func() {
			_, err := session.Update(s.ctx, t.ID, models.TaskInput{Title: "A"})
			firstDone <- err
		}()
		<-first.started
		go func() {
			_, err := session.Update(s.ctx, t.ID, models.TaskInput{Title: "B"})
			secondDone <- err
		}()
		<-second.started

		close(first.release)
		s.True(dErrors.HasCode(<-firstDone, dErrors.CodeRemoteFailure))
		stored, err := session.Task(t.ID)
		s.Require().NoError(err)
		s.Equal("B", stored.Title, "the newer optimistic edit stays while its call is pending")

		close(second.release)
		s.True(dErrors.HasCode(<-secondDone, dErrors.CodeRemoteFailure))

		stored, err = session.Task(t.ID)
		s.Require().NoError(err)
		s.Equal("orig", stored.Title)
		s.Equal(before, session.Snapshot())
	})

	s.Run("late commit replaces a rolled back record", func() {
		t := s.task("orig", &s.staff)
		session := s.loadAs(s.admin, t)
		first, second := newBlockingCall(), newBlockingCall()

		gomock.InOrder(
			s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ id.TaskID, patch models.TaskPatch) (models.Task, error) {
					first.wait()
					server := t.Clone()
					server.Title = patch.Details.Title
					return server, nil
				}),
			s.records.EXPECT().UpdateTask(gomock.Any(), t.ID, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ id.TaskID, _ models.TaskPatch) (models.Task, error) {
					second.wait()
					return models.Task{}, errRemote
				}),
		)

		firstDone, secondDone := make(chan error, 1), make(chan error, 1)
		go func() {
			_, err := session.Update(s.ctx, t.ID, models.TaskInput{Title: "A"})
			firstDone <- err
		}()
		<-first.started
		go func() {
			_, err := session.Update(s.ctx, t.ID, models.TaskInput{Title: "B"})
			secondDone <- err
		}()
		<-second.started

		close(second.release)
		s.True(dErrors.HasCode(<-secondDone, dErrors.CodeRemoteFailure))
		stored, err := session.Task(t.ID)
		s.Require().NoError(err)
		s.Equal("orig", stored.Title)

		close(first.release)
		s.Require().NoError(<-firstDone)
		stored, err = session.Task(t.ID)
		s.Require().NoError(err)
		s.Equal("A", stored.Title)
	})

	s.Run("two failed role changes leave the confirmed role", func() {
		session := s.loadAs(s.admin)
		before := session.Profiles()
		first, second := newBlockingCall(), newBlockingCall()

		gomock.InOrder(
			s.records.EXPECT().UpdateProfileRole(gomock.Any(), s.other.ID, id.RoleAdmin).
				DoAndReturn(func(context.Context, id.ProfileID, id.Role) error {
					first.wait()
					return errRemote
				}),
			s.records.EXPECT().UpdateProfileRole(gomock.Any(), s.other.ID, id.RoleStaff).
				DoAndReturn(func(context.Context, id.ProfileID, id.Role) error {
					second.wait()
					return errRemote
				}),
		)

		firstDone, secondDone := make(chan error, 1), make(chan error, 1)
		go func() { firstDone <- session.SetRole(s.ctx, s.other.ID, id.RoleAdmin) }()
		<-first.started
		go func() { secondDone <- session.SetRole(s.ctx, s.other.ID, id.RoleStaff) }()
		<-second.started

		close(first.release)
		s.Error(<-firstDone)
		close(second.release)
		s.Error(<-secondDone)

		s.Equal(before, session.Profiles())
	})

	s.Run("provisional task refuses edits until its create is confirmed", func() {
		session := s.loadAs(s.admin)
		serverID := id.NewTaskID()
		s.records.EXPECT().CreateTask(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, payload models.NewTask) (models.Task, error) {
				provisional := session.Tasks()[0].ID

				_, err := session.ChangeStatus(s.ctx, provisional, id.StatusCompleted)
				s.True(dErrors.HasCode(err, dErrors.CodeConflict))
				_, err = session.Update(s.ctx, provisional, models.TaskInput{Title: "renamed"})
				s.True(dErrors.HasCode(err, dErrors.CodeConflict))
				_, err = session.RequestDelete(s.ctx, provisional)
				s.True(dErrors.HasCode(err, dErrors.CodeConflict))
				s.Equal("This task is still being saved. Try again in a moment.", Notice(err))

				return models.Task{ID: serverID, Title: payload.Title, Status: payload.Status}, nil
			})

		_, err := session.Create(s.ctx, models.TaskInput{Title: "draft"})
		s.Require().NoError(err)

		tasks := session.Tasks()
		s.Require().Len(tasks, 1)
		s.Equal(serverID, tasks[0].ID)
		s.Equal("draft", tasks[0].Title)
	})
}
