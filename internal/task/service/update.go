package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"taskdesk/internal/task/metrics"
	"taskdesk/internal/task/models"
	"taskdesk/internal/task/policy"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/audit"
	"taskdesk/pkg/requestcontext"
)

// Update applies an edit to a task the actor may edit. CreatedBy is never
// sent or changed. A status change inside an edit goes through the same
// completed_at rule as ChangeStatus.
func (s *Session) Update(ctx context.Context, taskID id.TaskID, in models.TaskInput) (models.Task, error) {
	const op = "update"
	ctx, span := s.tracer.Start(ctx, "task.update")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID.String()))

	in.Normalize()
	if err := in.Validate(); err != nil {
		s.metrics.IncrementMutation(op, metrics.OutcomeInvalid)
		s.recordSpanError(span, err)
		return models.Task{}, err
	}

	now := requestcontext.Now(ctx)

	s.mu.Lock()
	actor, err := s.actorLocked()
	if err != nil {
		s.mu.Unlock()
		s.recordSpanError(span, err)
		return models.Task{}, err
	}
	prior, _, ok := s.coll.Task(taskID)
	if !ok {
		s.mu.Unlock()
		err := dErrors.New(dErrors.CodeNotFound, "task not found")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}
	if s.coll.IsProvisional(taskID) {
		s.mu.Unlock()
		err := errStillSaving()
		s.recordSpanError(span, err)
		return models.Task{}, err
	}
	if !policy.CanEdit(actor, prior) {
		s.mu.Unlock()
		s.deny(ctx, actor, op, taskID.String(), "task is not assigned to the actor")
		err := dErrors.New(dErrors.CodeForbidden, "you can only edit tasks assigned to you")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}
	assignedTo, err := policy.AssigneeForUpdate(actor, in.AssignedTo, in.Unassigned, prior.AssignedTo)
	if err != nil {
		s.mu.Unlock()
		s.deny(ctx, actor, op, taskID.String(), "staff cannot reassign tasks")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}

	next := prior.Clone()
	next.ApplyDetails(in.Details(assignedTo))
	if next.Status != in.Status {
		next.ApplyStatus(in.Status, now)
	}
	if !sameAssignee(prior.AssignedTo, next.AssignedTo) {
		// The join is resolved by the record service on commit.
		next.Assignee = nil
	}
	next.UpdatedAt = now
	version, _ := s.coll.Replace(next)
	s.mu.Unlock()

	var updated models.Task
	err = s.remote(op, func() error {
		var callErr error
		updated, callErr = s.records.UpdateTask(ctx, taskID, models.PatchFrom(next, true))
		return callErr
	})
	if err != nil {
		s.mu.Lock()
		restored := s.coll.Rollback(taskID, version)
		s.mu.Unlock()
		s.rolledBack(ctx, actor, op, taskID.String(), restored, err)
		err = remoteFailure(err, "Could not save the task.")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}

	s.mu.Lock()
	_, applied := s.coll.Commit(taskID, version, updated)
	s.mu.Unlock()
	s.committed(ctx, audit.EventTaskUpdated, actor, op, taskID.String(), applied)
	return updated.Clone(), nil
}

// ChangeStatus moves a task to a new status and sets or clears completed_at
// in the same step. Asking for the current status is a no-op that never
// reaches the record service. On success the optimistic record stays.
func (s *Session) ChangeStatus(ctx context.Context, taskID id.TaskID, status id.TaskStatus) (models.Task, error) {
	const op = "status"
	ctx, span := s.tracer.Start(ctx, "task.change_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", taskID.String()),
		attribute.String("task.status", status.String()),
	)

	if !status.IsValid() {
		s.metrics.IncrementMutation(op, metrics.OutcomeInvalid)
		err := dErrors.New(dErrors.CodeValidation, "invalid status")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}

	now := requestcontext.Now(ctx)

	s.mu.Lock()
	actor, err := s.actorLocked()
	if err != nil {
		s.mu.Unlock()
		s.recordSpanError(span, err)
		return models.Task{}, err
	}
	prior, _, ok := s.coll.Task(taskID)
	if !ok {
		s.mu.Unlock()
		err := dErrors.New(dErrors.CodeNotFound, "task not found")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}
	if s.coll.IsProvisional(taskID) {
		s.mu.Unlock()
		err := errStillSaving()
		s.recordSpanError(span, err)
		return models.Task{}, err
	}
	if !policy.CanEdit(actor, prior) {
		s.mu.Unlock()
		s.deny(ctx, actor, op, taskID.String(), "task is not assigned to the actor")
		err := dErrors.New(dErrors.CodeForbidden, "you can only update tasks assigned to you")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}
	if prior.Status == status {
		s.mu.Unlock()
		s.metrics.IncrementMutation(op, metrics.OutcomeNoop)
		return prior, nil
	}

	next := prior.Clone()
	next.ApplyStatus(status, now)
	next.UpdatedAt = now
	version, _ := s.coll.Replace(next)
	s.mu.Unlock()

	err = s.remote(op, func() error {
		_, callErr := s.records.UpdateTask(ctx, taskID, models.PatchFrom(next, false))
		return callErr
	})
	if err != nil {
		s.mu.Lock()
		restored := s.coll.Rollback(taskID, version)
		s.mu.Unlock()
		s.rolledBack(ctx, actor, op, taskID.String(), restored, err)
		err = remoteFailure(err, "Could not update the task status.")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}

	// The optimistic record stays and becomes the confirmed state.
	s.mu.Lock()
	committedVersion, applied := s.coll.Commit(taskID, version, next)
	s.mu.Unlock()
	s.committed(ctx, audit.EventTaskStatusChanged, actor, op, taskID.String(), applied,
		"from", string(prior.Status),
		"to", string(status),
	)
	if applied {
		next.Version = committedVersion
	}
	return next, nil
}

func sameAssignee(a, b *id.ProfileID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
