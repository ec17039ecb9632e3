package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"taskdesk/internal/task/metrics"
	"taskdesk/internal/task/policy"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/audit"
)

// SetRole changes another profile's role with the same optimistic protocol
// as task mutations. An admin can never demote themselves.
func (s *Session) SetRole(ctx context.Context, target id.ProfileID, role id.Role) error {
	const op = "role"
	ctx, span := s.tracer.Start(ctx, "profile.set_role")
	defer span.End()
	span.SetAttributes(
		attribute.String("profile.id", target.String()),
		attribute.String("profile.role", role.String()),
	)

	if !role.IsValid() {
		s.metrics.IncrementMutation(op, metrics.OutcomeInvalid)
		err := dErrors.New(dErrors.CodeValidation, "invalid role")
		s.recordSpanError(span, err)
		return err
	}

	s.mu.Lock()
	actor, err := s.actorLocked()
	if err != nil {
		s.mu.Unlock()
		s.recordSpanError(span, err)
		return err
	}
	if err := policy.CanChangeRole(actor, target, role); err != nil {
		s.mu.Unlock()
		s.deny(ctx, actor, op, target.String(), dErrors.MessageOf(err))
		s.recordSpanError(span, err)
		return err
	}
	current, ok := s.coll.Profile(target)
	if !ok {
		s.mu.Unlock()
		err := dErrors.New(dErrors.CodeNotFound, "profile not found")
		s.recordSpanError(span, err)
		return err
	}
	if current.Role == role {
		s.mu.Unlock()
		s.metrics.IncrementMutation(op, metrics.OutcomeNoop)
		return nil
	}
	prev, version, _ := s.coll.SetProfileRole(target, role)
	s.mu.Unlock()

	err = s.remote(op, func() error {
		return s.records.UpdateProfileRole(ctx, target, role)
	})
	if err != nil {
		s.mu.Lock()
		restored := s.coll.RestoreProfileRole(target, version)
		s.mu.Unlock()
		s.rolledBack(ctx, actor, op, target.String(), restored, err)
		err = remoteFailure(err, "Could not change the role.")
		s.recordSpanError(span, err)
		return err
	}

	s.mu.Lock()
	s.coll.CommitProfileRole(target, role)
	s.mu.Unlock()
	s.committed(ctx, audit.EventRoleChanged, actor, op, target.String(), true,
		"from", string(prev),
		"to", string(role),
	)
	return nil
}
