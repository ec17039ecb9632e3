package domain

import dErrors "taskdesk/pkg/domain-errors"

// TaskStatus is the stored lifecycle state of a task. "overdue" is not a
// status; it is derived from the due date.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

var validStatuses = map[TaskStatus]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
}

// Statuses lists every status in display order.
func Statuses() []TaskStatus {
	return []TaskStatus{StatusPending, StatusInProgress, StatusCompleted}
}

// ParseTaskStatus constructs a TaskStatus from external input.
func ParseTaskStatus(s string) (TaskStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "status cannot be empty")
	}
	st := TaskStatus(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status")
	}
	return st, nil
}

func (s TaskStatus) IsValid() bool     { return validStatuses[s] }
func (s TaskStatus) IsCompleted() bool { return s == StatusCompleted }
func (s TaskStatus) String() string    { return string(s) }
