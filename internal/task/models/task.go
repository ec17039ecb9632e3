package models

import (
	"time"

	id "taskdesk/pkg/domain"
)

// Task is a unit of trackable client work.
//
// Invariants:
//   - Title is non-blank after trimming
//   - CompletedAt is non-nil if and only if Status is completed
//   - Status and CompletedAt only change together, through ApplyStatus
//   - CreatedBy is immutable after creation
//
// Assignee is a denormalized join resolved by the record service at read
// time. It is never re-derived locally. Version is a session-local counter
// bumped on every optimistic apply and never leaves the process.
type Task struct {
	ID          id.TaskID     `json:"id"`
	Title       string        `json:"title"`
	Description *string       `json:"description"`
	Status      id.TaskStatus `json:"status"`
	Priority    id.Priority   `json:"priority"`
	ClientName  *string       `json:"client_name"`
	MatterRef   *string       `json:"matter_ref"`
	AssignedTo  *id.ProfileID `json:"assigned_to"`
	CreatedBy   *id.ProfileID `json:"created_by"`
	DueDate     *Date         `json:"due_date"`
	CompletedAt *time.Time    `json:"completed_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Assignee    *Assignee     `json:"assignee"`

	Version uint64 `json:"-"`
}

// Assignee is the profile referenced by Task.AssignedTo as resolved by the
// record service.
type Assignee struct {
	ID        id.ProfileID `json:"id"`
	Email     string       `json:"email"`
	FullName  *string      `json:"full_name"`
	AvatarURL *string      `json:"avatar_url"`
	Role      id.Role      `json:"role"`
}

// ApplyStatus sets the status and keeps CompletedAt in lock-step with it.
// It is the only code path that writes CompletedAt.
func (t *Task) ApplyStatus(status id.TaskStatus, now time.Time) {
	t.Status = status
	if status.IsCompleted() {
		completedAt := now
		t.CompletedAt = &completedAt
		return
	}
	t.CompletedAt = nil
}

// IsAssignedTo reports whether the task is assigned to the given profile.
func (t Task) IsAssignedTo(profileID id.ProfileID) bool {
	return t.AssignedTo != nil && *t.AssignedTo == profileID
}

// Details extracts the editable fields of the task.
func (t Task) Details() TaskDetails {
	return TaskDetails{
		Title:       t.Title,
		Description: cloneString(t.Description),
		Priority:    t.Priority,
		ClientName:  cloneString(t.ClientName),
		MatterRef:   cloneString(t.MatterRef),
		AssignedTo:  cloneProfileID(t.AssignedTo),
		DueDate:     cloneDate(t.DueDate),
	}
}

// Clone returns a deep copy so callers never share pointers with the session state.
func (t Task) Clone() Task {
	t.Description = cloneString(t.Description)
	t.ClientName = cloneString(t.ClientName)
	t.MatterRef = cloneString(t.MatterRef)
	t.AssignedTo = cloneProfileID(t.AssignedTo)
	t.CreatedBy = cloneProfileID(t.CreatedBy)
	t.DueDate = cloneDate(t.DueDate)
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	if t.Assignee != nil {
		a := *t.Assignee
		a.FullName = cloneString(a.FullName)
		a.AvatarURL = cloneString(a.AvatarURL)
		t.Assignee = &a
	}
	return t
}

// CloneTasks deep-copies a slice of tasks.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneProfileID(p *id.ProfileID) *id.ProfileID {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneDate(d *Date) *Date {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
