// Package guarded wraps a record service in a circuit breaker so a failing
// store is answered fast instead of on every request's timeout.
package guarded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"taskdesk/internal/task/models"
	"taskdesk/internal/task/ports"
	id "taskdesk/pkg/domain"
	"taskdesk/pkg/platform/circuit"
	"taskdesk/pkg/platform/sentinel"
)

// RecordService forwards to an inner record service while the breaker is
// closed. Not-found, conflict and invalid-state answers prove the store is
// reachable and count as successes.
type RecordService struct {
	inner   ports.RecordService
	breaker *circuit.Breaker
	logger  *slog.Logger
}

var _ ports.RecordService = (*RecordService)(nil)

func New(inner ports.RecordService, breaker *circuit.Breaker, logger *slog.Logger) *RecordService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordService{inner: inner, breaker: breaker, logger: logger}
}

func (g *RecordService) ListTasks(ctx context.Context, filter ports.VisibilityFilter) ([]models.Task, error) {
	return guard(ctx, g, "list_tasks", func() ([]models.Task, error) {
		return g.inner.ListTasks(ctx, filter)
	})
}

func (g *RecordService) CreateTask(ctx context.Context, task models.NewTask) (models.Task, error) {
	return guard(ctx, g, "create_task", func() (models.Task, error) {
		return g.inner.CreateTask(ctx, task)
	})
}

func (g *RecordService) UpdateTask(ctx context.Context, taskID id.TaskID, patch models.TaskPatch) (models.Task, error) {
	return guard(ctx, g, "update_task", func() (models.Task, error) {
		return g.inner.UpdateTask(ctx, taskID, patch)
	})
}

func (g *RecordService) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	_, err := guard(ctx, g, "delete_task", func() (struct{}, error) {
		return struct{}{}, g.inner.DeleteTask(ctx, taskID)
	})
	return err
}

func (g *RecordService) ListProfiles(ctx context.Context, order ports.ProfileOrder) ([]models.Profile, error) {
	return guard(ctx, g, "list_profiles", func() ([]models.Profile, error) {
		return g.inner.ListProfiles(ctx, order)
	})
}

func (g *RecordService) UpdateProfileRole(ctx context.Context, profileID id.ProfileID, role id.Role) error {
	_, err := guard(ctx, g, "update_profile_role", func() (struct{}, error) {
		return struct{}{}, g.inner.UpdateProfileRole(ctx, profileID, role)
	})
	return err
}

func guard[T any](ctx context.Context, g *RecordService, operation string, call func() (T, error)) (T, error) {
	var zero T
	if !g.breaker.Allow() {
		return zero, fmt.Errorf("%s: circuit %s open: %w", operation, g.breaker.Name(), sentinel.ErrUnavailable)
	}
	out, err := call()
	if err != nil && countsAsFailure(ctx, err) {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "record service circuit opened",
				"breaker", g.breaker.Name(),
				"operation", operation,
				"error", err,
			)
		}
		return zero, err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "record service circuit closed", "breaker", g.breaker.Name())
	}
	return out, err
}

func countsAsFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return false
	}
	return !errors.Is(err, sentinel.ErrNotFound) &&
		!errors.Is(err, sentinel.ErrConflict) &&
		!errors.Is(err, sentinel.ErrInvalidState)
}
