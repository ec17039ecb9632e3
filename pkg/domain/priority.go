package domain

import dErrors "taskdesk/pkg/domain-errors"

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var validPriorities = map[Priority]bool{
	PriorityCritical: true,
	PriorityHigh:     true,
	PriorityMedium:   true,
	PriorityLow:      true,
}

// Priorities lists every priority from most to least urgent.
func Priorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}

// ParsePriority constructs a Priority from external input.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "priority cannot be empty")
	}
	p := Priority(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid priority")
	}
	return p, nil
}

func (p Priority) IsValid() bool  { return validPriorities[p] }
func (p Priority) String() string { return string(p) }
