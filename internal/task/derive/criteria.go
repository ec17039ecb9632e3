package derive

import (
	"strings"

	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
)

// StatusFilter narrows the task view by lifecycle state. Overdue is a derived
// pseudo-status.
type StatusFilter string

const (
	StatusAll        StatusFilter = "all"
	StatusPending    StatusFilter = StatusFilter(id.StatusPending)
	StatusInProgress StatusFilter = StatusFilter(id.StatusInProgress)
	StatusCompleted  StatusFilter = StatusFilter(id.StatusCompleted)
	StatusOverdue    StatusFilter = "overdue"
)

// PriorityFilter narrows the task view by priority.
type PriorityFilter string

const PriorityAll PriorityFilter = "all"

// Criteria is the combined filter applied to the visible tasks. The zero value
// matches everything.
type Criteria struct {
	Status   StatusFilter   `json:"status"`
	Priority PriorityFilter `json:"priority"`
	Query    string         `json:"q"`
}

// ParseStatusFilter accepts "", "all", a stored status or "overdue".
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.TrimSpace(s)); f {
	case "", StatusAll:
		return StatusAll, nil
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverdue:
		return f, nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid status filter")
	}
}

// ParsePriorityFilter accepts "", "all" or a priority.
func ParsePriorityFilter(s string) (PriorityFilter, error) {
	s = strings.TrimSpace(s)
	if s == "" || PriorityFilter(s) == PriorityAll {
		return PriorityAll, nil
	}
	if !id.Priority(s).IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid priority filter")
	}
	return PriorityFilter(s), nil
}

// ParseCriteria builds criteria from raw query parameters.
func ParseCriteria(status, priority, query string) (Criteria, error) {
	sf, err := ParseStatusFilter(status)
	if err != nil {
		return Criteria{}, err
	}
	pf, err := ParsePriorityFilter(priority)
	if err != nil {
		return Criteria{}, err
	}
	return Criteria{Status: sf, Priority: pf, Query: query}, nil
}
