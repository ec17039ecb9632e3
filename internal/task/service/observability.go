package service

import (
	"context"

	"taskdesk/internal/task/metrics"
	"taskdesk/internal/task/policy"
	"taskdesk/pkg/platform/audit"
	"taskdesk/pkg/requestcontext"
)

func (s *Session) logAudit(ctx context.Context, event audit.AuditEvent, actor policy.Actor, subject, decision string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes,
		"event", string(event),
		"actor_id", actor.ID,
		"subject", subject,
		"decision", decision,
		"log_type", "audit",
	)
	s.logger.InfoContext(ctx, string(event), args...)

	if s.auditPublisher == nil {
		return
	}
	reason := ""
	for i := 0; i+1 < len(attributes); i += 2 {
		if attributes[i] == "reason" {
			if r, ok := attributes[i+1].(string); ok {
				reason = r
			}
		}
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		ActorID:   actor.ID,
		Subject:   subject,
		Action:    string(event),
		Decision:  decision,
		Reason:    reason,
		RequestID: requestID,
		Timestamp: requestcontext.Now(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

// deny records a refused action. Nothing was applied, nothing reached the
// record service.
func (s *Session) deny(ctx context.Context, actor policy.Actor, operation, subject, reason string) {
	s.metrics.IncrementMutation(operation, metrics.OutcomeDenied)
	s.logAudit(ctx, audit.EventAccessDenied, actor, subject, audit.DecisionDenied,
		"operation", operation,
		"reason", reason,
	)
}

// rolledBack records a failed remote call whose optimistic effect was undone.
func (s *Session) rolledBack(ctx context.Context, actor policy.Actor, operation, subject string, restored bool, cause error) {
	s.metrics.IncrementMutation(operation, metrics.OutcomeRolledBack)
	if !restored {
		s.metrics.IncrementStale(operation, "rollback")
		s.logAudit(ctx, audit.EventStaleOutcome, actor, subject, audit.DecisionDiscarded,
			"operation", operation,
			"phase", "rollback",
		)
	}
	s.logger.WarnContext(ctx, "record service call failed, optimistic change reverted",
		"operation", operation,
		"subject", subject,
		"restored", restored,
		"error", cause,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.logAudit(ctx, audit.EventMutationRolledBack, actor, subject, audit.DecisionRolledBack,
		"operation", operation,
		"reason", cause.Error(),
	)
}

// committed records a confirmed mutation. applied is false when a newer
// optimistic change superseded the record before the commit landed.
func (s *Session) committed(ctx context.Context, event audit.AuditEvent, actor policy.Actor, operation, subject string, applied bool, attributes ...any) {
	s.metrics.IncrementMutation(operation, metrics.OutcomeCommitted)
	if !applied {
		s.metrics.IncrementStale(operation, "commit")
		s.logAudit(ctx, audit.EventStaleOutcome, actor, subject, audit.DecisionDiscarded,
			"operation", operation,
			"phase", "commit",
		)
	}
	s.logAudit(ctx, event, actor, subject, audit.DecisionCommitted, attributes...)
}
