package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/mock/gomock"

	"taskdesk/internal/task/metrics"
	"taskdesk/internal/task/models"
	"taskdesk/internal/task/ports"
	dErrors "taskdesk/pkg/domain-errors"
)

// =============================================================================
// Session manager
// =============================================================================

func (s *SessionSuite) TestManager() {
	s.Run("signed out callers are unauthorized", func() {
		m := NewManager(s.records, s.identity, ManagerConfig{Metrics: metrics.New(nil)})
		s.identity.EXPECT().CurrentUser(gomock.Any()).Return(s.staff.ID, false)

		_, err := m.Current(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(0, m.Len())
	})

	s.Run("concurrent first requests share one load", func() {
		m := NewManager(s.records, s.identity, ManagerConfig{Metrics: metrics.New(nil)})
		release := make(chan struct{})
		s.identity.EXPECT().CurrentUser(gomock.Any()).Return(s.staff.ID, true).AnyTimes()
		s.identity.EXPECT().GetProfile(gomock.Any(), s.staff.ID).Return(s.staff, nil).Times(1)
		s.records.EXPECT().ListTasks(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, ports.VisibilityFilter) ([]models.Task, error) {
				<-release
				return []models.Task{s.task("mine", &s.staff)}, nil
			}).Times(1)

		var wg sync.WaitGroup
		sessions := make([]*Session, 4)
		for i := range sessions {
			wg.Add(1)
			go func() {
				defer wg.Done()
				session, err := m.Current(s.ctx)
				s.NoError(err)
				sessions[i] = session
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		for _, session := range sessions {
			s.Same(sessions[0], session)
		}
		s.Equal(1, m.Len())
	})

	s.Run("cancelled first caller does not fail the shared load", func() {
		m := NewManager(s.records, s.identity, ManagerConfig{Metrics: metrics.New(nil)})
		started, release := make(chan struct{}), make(chan struct{})
		s.identity.EXPECT().CurrentUser(gomock.Any()).Return(s.staff.ID, true).AnyTimes()
		s.identity.EXPECT().GetProfile(gomock.Any(), s.staff.ID).Return(s.staff, nil).Times(1)
		s.records.EXPECT().ListTasks(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ ports.VisibilityFilter) ([]models.Task, error) {
				close(started)
				<-release
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return []models.Task{s.task("mine", &s.staff)}, nil
			}).Times(1)

		firstCtx, cancel := context.WithCancel(s.ctx)
		firstDone := make(chan error, 1)
		go func() {
			_, err := m.Current(firstCtx)
			firstDone <- err
		}()
		<-started

		secondDone := make(chan error, 1)
		go func() {
			_, err := m.Current(s.ctx)
			secondDone <- err
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()
		close(release)

		s.NoError(<-firstDone)
		s.NoError(<-secondDone)
		s.Equal(1, m.Len())
	})

	s.Run("invalidate and sweep evict sessions", func() {
		m := NewManager(s.records, s.identity, ManagerConfig{IdleTTL: time.Minute})
		s.identity.EXPECT().CurrentUser(gomock.Any()).Return(s.staff.ID, true).Times(2)
		s.identity.EXPECT().GetProfile(gomock.Any(), s.staff.ID).Return(s.staff, nil).Times(2)
		s.records.EXPECT().ListTasks(gomock.Any(), gomock.Any()).Return(nil, nil).Times(2)

		_, err := m.Current(s.ctx)
		s.Require().NoError(err)
		m.Invalidate(s.staff.ID)
		s.Equal(0, m.Len())

		_, err = m.Current(s.ctx)
		s.Require().NoError(err)
		s.Equal(0, m.Sweep(time.Now()))
		s.Equal(1, m.Sweep(time.Now().Add(2*time.Minute)))
		s.Equal(0, m.Len())
	})
}
