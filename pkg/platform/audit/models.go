package audit

import (
	"context"
	"time"

	id "taskdesk/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers changes to records and access rights.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers refused actions and authentication failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity and sync conflicts.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// ActorID is the profile on whose behalf the action ran.
	ActorID id.ProfileID `json:"actor_id"`
	// Subject is the task or profile the action targeted.
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	// Task events
	EventTaskCreated         AuditEvent = "task_created"
	EventTaskUpdated         AuditEvent = "task_updated"
	EventTaskStatusChanged   AuditEvent = "task_status_changed"
	EventTaskDeleteRequested AuditEvent = "task_delete_requested"
	EventTaskDeleted         AuditEvent = "task_deleted"

	// Profile events
	EventRoleChanged AuditEvent = "role_changed"
	EventUserCreated AuditEvent = "user_created"
	EventUserLogin   AuditEvent = "user_login"

	// Refusals and failures
	EventAccessDenied       AuditEvent = "access_denied"
	EventAuthFailed         AuditEvent = "auth_failed"
	EventMutationRolledBack AuditEvent = "mutation_rolled_back"
	EventStaleOutcome       AuditEvent = "stale_outcome_discarded"
)

// Decisions attached to mutation events.
const (
	DecisionCommitted  = "committed"
	DecisionRolledBack = "rolled_back"
	DecisionDenied     = "denied"
	DecisionDiscarded  = "discarded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventTaskCreated:       CategoryCompliance,
	EventTaskUpdated:       CategoryCompliance,
	EventTaskStatusChanged: CategoryCompliance,
	EventTaskDeleted:       CategoryCompliance,
	EventRoleChanged:       CategoryCompliance,
	EventUserCreated:       CategoryCompliance,

	EventAccessDenied: CategorySecurity,
	EventAuthFailed:   CategorySecurity,

	EventTaskDeleteRequested: CategoryOperations,
	EventUserLogin:           CategoryOperations,
	EventMutationRolledBack:  CategoryOperations,
	EventStaleOutcome:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByActor(ctx context.Context, actorID id.ProfileID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
