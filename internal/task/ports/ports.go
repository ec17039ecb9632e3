// Package ports defines the collaborators the task session consumes. The
// session never talks to a database or identity provider directly.
package ports

import (
	"context"

	"taskdesk/internal/task/models"
	id "taskdesk/pkg/domain"
	"taskdesk/pkg/platform/audit"
)

// VisibilityFilter scopes a task listing at the fetch boundary. A nil
// AssignedTo lists every task.
type VisibilityFilter struct {
	AssignedTo *id.ProfileID
}

// ProfileOrder names the sort applied to profile listings.
type ProfileOrder string

const (
	OrderByFullName  ProfileOrder = "full_name"
	OrderByCreatedAt ProfileOrder = "created_at"
)

// RecordService is the remote store of tasks and profiles. Returned tasks
// carry a resolved Assignee. Any error is treated by the session as "the
// operation failed" and triggers a rollback.
type RecordService interface {
	ListTasks(ctx context.Context, filter VisibilityFilter) ([]models.Task, error)
	CreateTask(ctx context.Context, task models.NewTask) (models.Task, error)
	UpdateTask(ctx context.Context, taskID id.TaskID, patch models.TaskPatch) (models.Task, error)
	DeleteTask(ctx context.Context, taskID id.TaskID) error
	ListProfiles(ctx context.Context, order ProfileOrder) ([]models.Profile, error)
	UpdateProfileRole(ctx context.Context, profileID id.ProfileID, role id.Role) error
}

// Identity resolves the authenticated user and their profile.
type Identity interface {
	CurrentUser(ctx context.Context) (id.ProfileID, bool)
	GetProfile(ctx context.Context, profileID id.ProfileID) (models.Profile, error)
}

// AuditPublisher records task and role events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
