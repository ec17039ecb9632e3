package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"taskdesk/internal/task/metrics"
	"taskdesk/internal/task/models"
	"taskdesk/internal/task/policy"
	id "taskdesk/pkg/domain"
	"taskdesk/pkg/platform/audit"
	"taskdesk/pkg/requestcontext"
)

// Create validates the input, inserts a provisional task at the front of the
// collection and asks the record service to persist it. On success the
// provisional record is swapped for the server record; on failure it is
// removed again.
//
// Tasks default to the actor as assignee. Staff tasks are always assigned to
// the staff member; admins may pick anyone or explicitly leave it unassigned.
// The provisional task refuses edits until the create is confirmed.
func (s *Session) Create(ctx context.Context, in models.TaskInput) (models.Task, error) {
	const op = "create"
	ctx, span := s.tracer.Start(ctx, "task.create")
	defer span.End()

	actor, err := s.actor()
	if err != nil {
		s.recordSpanError(span, err)
		return models.Task{}, err
	}

	in.Normalize()
	if err := in.Validate(); err != nil {
		s.metrics.IncrementMutation(op, metrics.OutcomeInvalid)
		s.recordSpanError(span, err)
		return models.Task{}, err
	}
	assignedTo, err := policy.AssigneeForCreate(actor, in.AssignedTo, in.Unassigned)
	if err != nil {
		s.deny(ctx, actor, op, "", "staff cannot assign tasks to others")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}

	now := requestcontext.Now(ctx)
	creator := actor.ID
	provisional := models.Task{
		ID:        id.NewTaskID(),
		CreatedBy: &creator,
		CreatedAt: now,
		UpdatedAt: now,
	}
	provisional.ApplyDetails(in.Details(assignedTo))
	provisional.ApplyStatus(in.Status, now)

	s.mu.Lock()
	version := s.coll.Insert(provisional)
	s.mu.Unlock()
	span.SetAttributes(attribute.String("task.provisional_id", provisional.ID.String()))

	payload := models.NewTask{
		TaskDetails: provisional.Details(),
		Status:      provisional.Status,
		CompletedAt: provisional.CompletedAt,
		CreatedBy:   actor.ID,
	}
	var created models.Task
	err = s.remote(op, func() error {
		var callErr error
		created, callErr = s.records.CreateTask(ctx, payload)
		return callErr
	})
	if err != nil {
		s.mu.Lock()
		restored := s.coll.DiscardProvisional(provisional.ID, version)
		s.mu.Unlock()
		s.rolledBack(ctx, actor, op, provisional.ID.String(), restored, err)
		err = remoteFailure(err, "Could not create the task.")
		s.recordSpanError(span, err)
		return models.Task{}, err
	}

	s.mu.Lock()
	_, applied := s.coll.CommitCreate(provisional.ID, version, created)
	s.mu.Unlock()
	s.committed(ctx, audit.EventTaskCreated, actor, op, created.ID.String(), applied,
		"priority", string(created.Priority),
	)
	span.SetAttributes(attribute.String("task.id", created.ID.String()))
	span.AddEvent("committed")
	return created.Clone(), nil
}
