package guarded

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"taskdesk/internal/task/models"
	"taskdesk/internal/task/ports"
	"taskdesk/internal/task/ports/mocks"
	id "taskdesk/pkg/domain"
	"taskdesk/pkg/platform/circuit"
	"taskdesk/pkg/platform/sentinel"
)

type GuardedSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	inner   *mocks.MockRecordService
	now     time.Time
	breaker *circuit.Breaker
	guarded *RecordService
}

func TestGuardedSuite(t *testing.T) {
	suite.Run(t, new(GuardedSuite))
}

func (s *GuardedSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.inner = mocks.NewMockRecordService(s.ctrl)
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.breaker = circuit.New("records",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Second),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.guarded = New(s.inner, s.breaker, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *GuardedSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GuardedSuite) TestOpensAfterRepeatedFailures() {
	ctx := context.Background()
	boom := errors.New("connection refused")
	s.inner.EXPECT().ListTasks(gomock.Any(), gomock.Any()).Return(nil, boom).Times(2)

	for range 2 {
		_, err := s.guarded.ListTasks(ctx, ports.VisibilityFilter{})
		s.ErrorIs(err, boom)
	}
	s.True(s.breaker.IsOpen())

	_, err := s.guarded.ListTasks(ctx, ports.VisibilityFilter{})
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

func (s *GuardedSuite) TestTrialCallAfterCooldownCloses() {
	ctx := context.Background()
	taskID := id.NewTaskID()
	s.inner.EXPECT().DeleteTask(gomock.Any(), taskID).Return(errors.New("timeout")).Times(2)
	for range 2 {
		s.Error(s.guarded.DeleteTask(ctx, taskID))
	}
	s.Require().True(s.breaker.IsOpen())

	s.now = s.now.Add(time.Second)
	s.inner.EXPECT().DeleteTask(gomock.Any(), taskID).Return(nil)
	s.NoError(s.guarded.DeleteTask(ctx, taskID))
	s.False(s.breaker.IsOpen())
}

func (s *GuardedSuite) TestBusinessErrorsKeepCircuitClosed() {
	ctx := context.Background()
	profileID := id.NewProfileID()
	s.inner.EXPECT().UpdateProfileRole(gomock.Any(), profileID, id.RoleAdmin).
		Return(fmt.Errorf("profile: %w", sentinel.ErrNotFound)).Times(3)
	s.inner.EXPECT().CreateTask(gomock.Any(), gomock.Any()).
		Return(models.Task{}, fmt.Errorf("email: %w", sentinel.ErrConflict)).Times(3)

	for range 3 {
		s.ErrorIs(s.guarded.UpdateProfileRole(ctx, profileID, id.RoleAdmin), sentinel.ErrNotFound)
		_, err := s.guarded.CreateTask(ctx, models.NewTask{})
		s.ErrorIs(err, sentinel.ErrConflict)
	}
	s.False(s.breaker.IsOpen())
}

func (s *GuardedSuite) TestCallerCancellationIsNotAFailure() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.inner.EXPECT().ListProfiles(gomock.Any(), ports.OrderByFullName).Return(nil, context.Canceled).Times(3)
	for range 3 {
		_, err := s.guarded.ListProfiles(ctx, ports.OrderByFullName)
		s.ErrorIs(err, context.Canceled)
	}
	s.False(s.breaker.IsOpen())
}

func (s *GuardedSuite) TestForwardsResults() {
	taskID := id.NewTaskID()
	want := models.Task{ID: taskID, Title: "ok"}
	s.inner.EXPECT().UpdateTask(gomock.Any(), taskID, gomock.Any()).Return(want, nil)
	got, err := s.guarded.UpdateTask(context.Background(), taskID, models.TaskPatch{Status: id.StatusPending})
	s.Require().NoError(err)
	s.Equal(want, got)
}
