package models

import (
	"strings"
	"time"

	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	pstrings "taskdesk/pkg/platform/strings"
)

// TaskInput is the create/update payload as submitted by a user. Blank
// optional strings are treated as absent. When Status or Priority is empty the
// form defaults apply (pending, medium).
type TaskInput struct {
	Title       string        `json:"title"`
	Description *string       `json:"description"`
	Status      id.TaskStatus `json:"status"`
	Priority    id.Priority   `json:"priority"`
	ClientName  *string       `json:"client_name"`
	MatterRef   *string       `json:"matter_ref"`
	DueDate     *Date         `json:"due_date"`
	AssignedTo  *id.ProfileID `json:"assigned_to"`
	// Unassigned clears the assignee explicitly. Only admins may use it.
	Unassigned bool `json:"unassigned"`
}

// Normalize trims the title, collapses blank optionals to nil and fills
// defaulted enums.
func (in *TaskInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = pstrings.TrimToNil(in.Description)
	in.ClientName = pstrings.TrimToNil(in.ClientName)
	in.MatterRef = pstrings.TrimToNil(in.MatterRef)
	if in.Status == "" {
		in.Status = id.StatusPending
	}
	if in.Priority == "" {
		in.Priority = id.PriorityMedium
	}
	if in.AssignedTo != nil && in.AssignedTo.IsNil() {
		in.AssignedTo = nil
	}
	if in.Unassigned {
		in.AssignedTo = nil
	}
}

// Validate checks a normalized input. Call Normalize first.
func (in TaskInput) Validate() error {
	if pstrings.IsBlank(in.Title) {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if !in.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	if !in.Priority.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid priority")
	}
	return nil
}

// Details extracts the editable fields. The assignee is resolved separately by
// the caller because it depends on the actor's role.
func (in TaskInput) Details(assignedTo *id.ProfileID) TaskDetails {
	return TaskDetails{
		Title:       in.Title,
		Description: cloneString(in.Description),
		Priority:    in.Priority,
		ClientName:  cloneString(in.ClientName),
		MatterRef:   cloneString(in.MatterRef),
		AssignedTo:  cloneProfileID(assignedTo),
		DueDate:     cloneDate(in.DueDate),
	}
}

// TaskDetails is the editable, non-lifecycle part of a task.
type TaskDetails struct {
	Title       string
	Description *string
	Priority    id.Priority
	ClientName  *string
	MatterRef   *string
	AssignedTo  *id.ProfileID
	DueDate     *Date
}

// ApplyDetails overwrites the editable fields of the task. Status,
// CompletedAt, CreatedBy and the timestamps are left untouched.
func (t *Task) ApplyDetails(d TaskDetails) {
	t.Title = d.Title
	t.Description = cloneString(d.Description)
	t.Priority = d.Priority
	t.ClientName = cloneString(d.ClientName)
	t.MatterRef = cloneString(d.MatterRef)
	t.AssignedTo = cloneProfileID(d.AssignedTo)
	t.DueDate = cloneDate(d.DueDate)
}

// NewTask is the create payload sent to the record service.
type NewTask struct {
	TaskDetails
	Status      id.TaskStatus
	CompletedAt *time.Time
	CreatedBy   id.ProfileID
}

// TaskPatch is the update payload sent to the record service. Status and
// CompletedAt always travel together. Details is nil for status-only changes.
type TaskPatch struct {
	Status      id.TaskStatus
	CompletedAt *time.Time
	Details     *TaskDetails
}

// PatchFrom builds a patch from an optimistically applied task.
func PatchFrom(t Task, withDetails bool) TaskPatch {
	patch := TaskPatch{Status: t.Status, CompletedAt: t.CompletedAt}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		patch.CompletedAt = &c
	}
	if withDetails {
		d := t.Details()
		patch.Details = &d
	}
	return patch
}
