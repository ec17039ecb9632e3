package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"taskdesk/internal/task/policy"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/audit"
	"taskdesk/pkg/requestcontext"
)

// ConfirmationToken authorizes exactly one pending deletion.
type ConfirmationToken string

// ParseConfirmationToken validates a token received from a client.
func ParseConfirmationToken(s string) (ConfirmationToken, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid confirmation token")
	}
	return ConfirmationToken(s), nil
}

func (t ConfirmationToken) String() string { return string(t) }

type pendingDelete struct {
	taskID    id.TaskID
	actorID   id.ProfileID
	expiresAt time.Time
}

// DeleteRequest is handed back to the caller so they can show a confirmation
// prompt for the task.
type DeleteRequest struct {
	Token     ConfirmationToken `json:"token"`
	TaskID    id.TaskID         `json:"task_id"`
	Title     string            `json:"title"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// RequestDelete is the first phase of a deletion. Nothing is removed until
// the returned token is confirmed.
func (s *Session) RequestDelete(ctx context.Context, taskID id.TaskID) (DeleteRequest, error) {
	const op = "delete"
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	actor, err := s.actorLocked()
	if err != nil {
		s.mu.Unlock()
		return DeleteRequest{}, err
	}
	if !policy.CanDelete(actor.Role) {
		s.mu.Unlock()
		s.deny(ctx, actor, op, taskID.String(), "delete requires admin")
		return DeleteRequest{}, dErrors.New(dErrors.CodeForbidden, "only admins can delete tasks")
	}
	task, _, ok := s.coll.Task(taskID)
	if !ok {
		s.mu.Unlock()
		return DeleteRequest{}, dErrors.New(dErrors.CodeNotFound, "task not found")
	}
	if s.coll.IsProvisional(taskID) {
		s.mu.Unlock()
		return DeleteRequest{}, errStillSaving()
	}
	s.pruneExpiredLocked(now)
	token := ConfirmationToken(uuid.NewString())
	expiresAt := now.Add(s.deleteTTL)
	s.pending[token] = pendingDelete{taskID: taskID, actorID: actor.ID, expiresAt: expiresAt}
	s.mu.Unlock()

	s.logAudit(ctx, audit.EventTaskDeleteRequested, actor, taskID.String(), "")
	return DeleteRequest{Token: token, TaskID: taskID, Title: task.Title, ExpiresAt: expiresAt}, nil
}

// ConfirmDelete is the second phase: the task is removed optimistically and
// the record service asked to delete it. Tokens are single use; a failed
// delete needs a new request.
func (s *Session) ConfirmDelete(ctx context.Context, token ConfirmationToken) error {
	const op = "delete"
	ctx, span := s.tracer.Start(ctx, "task.delete")
	defer span.End()

	now := requestcontext.Now(ctx)

	s.mu.Lock()
	actor, err := s.actorLocked()
	if err != nil {
		s.mu.Unlock()
		s.recordSpanError(span, err)
		return err
	}
	pd, ok := s.pending[token]
	delete(s.pending, token)
	if !ok {
		s.mu.Unlock()
		err := dErrors.New(dErrors.CodeNotFound, "unknown or already used confirmation")
		s.recordSpanError(span, err)
		return err
	}
	if now.After(pd.expiresAt) {
		s.mu.Unlock()
		err := dErrors.New(dErrors.CodeBadRequest, "confirmation expired, request the deletion again")
		s.recordSpanError(span, err)
		return err
	}
	if pd.actorID != actor.ID || !policy.CanDelete(actor.Role) {
		s.mu.Unlock()
		s.deny(ctx, actor, op, pd.taskID.String(), "confirmation does not belong to an admin actor")
		err := dErrors.New(dErrors.CodeForbidden, "only admins can delete tasks")
		s.recordSpanError(span, err)
		return err
	}
	removed, index, ok := s.coll.Remove(pd.taskID)
	s.mu.Unlock()
	if !ok {
		err := dErrors.New(dErrors.CodeNotFound, "task not found")
		s.recordSpanError(span, err)
		return err
	}
	span.SetAttributes(attribute.String("task.id", pd.taskID.String()))

	err = s.remote(op, func() error {
		return s.records.DeleteTask(ctx, pd.taskID)
	})
	if err != nil {
		s.mu.Lock()
		restored := s.coll.RestoreAt(removed, index)
		s.mu.Unlock()
		s.rolledBack(ctx, actor, op, pd.taskID.String(), restored, err)
		err = remoteFailure(err, "Could not delete the task.")
		s.recordSpanError(span, err)
		return err
	}

	s.mu.Lock()
	s.coll.Forget(pd.taskID)
	s.mu.Unlock()
	s.committed(ctx, audit.EventTaskDeleted, actor, op, pd.taskID.String(), true,
		"title", removed.Title,
	)
	return nil
}

// CancelDelete discards a pending deletion. It reports whether the token was
// still pending.
func (s *Session) CancelDelete(token ConfirmationToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[token]
	delete(s.pending, token)
	return ok
}

func (s *Session) pruneExpiredLocked(now time.Time) {
	for token, pd := range s.pending {
		if now.After(pd.expiresAt) {
			delete(s.pending, token)
		}
	}
}
