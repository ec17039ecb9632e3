// Package derive computes the read-side projections of the task collection:
// overdue state, dashboard statistics, the filtered task list and the team
// roster. Functions here are pure and never mutate their inputs.
package derive

import (
	"iter"
	"strconv"
	"strings"
	"time"

	"taskdesk/internal/task/models"
	"taskdesk/internal/task/policy"
	id "taskdesk/pkg/domain"
	pstrings "taskdesk/pkg/platform/strings"
)

// IsOverdue reports whether the task has a due date, is not completed, and the
// start of its due date (in now's location) is strictly before now. A task due
// today is therefore overdue for the whole of today.
func IsOverdue(task models.Task, now time.Time) bool {
	if task.DueDate == nil || task.Status.IsCompleted() {
		return false
	}
	return task.DueDate.Before(now)
}

// OverdueDays returns the number of whole days since the due date started and
// whether the task is overdue at all. Zero means due today.
func OverdueDays(task models.Task, now time.Time) (int, bool) {
	if !IsOverdue(task, now) {
		return 0, false
	}
	return int(now.Sub(task.DueDate.StartIn(now.Location())) / (24 * time.Hour)), true
}

// OverdueLabel renders the overdue badge: "Due today", "3d overdue", or empty
// when the task is not overdue.
func OverdueLabel(task models.Task, now time.Time) string {
	days, overdue := OverdueDays(task, now)
	switch {
	case !overdue:
		return ""
	case days == 0:
		return "Due today"
	default:
		return strconv.Itoa(days) + "d overdue"
	}
}

// Stats are the dashboard counters over the visible tasks.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
	Critical   int `json:"critical"`
}

// ComputeStats counts over tasks that are already visibility-scoped.
// Critical counts open critical tasks only.
func ComputeStats(tasks []models.Task, now time.Time) Stats {
	var st Stats
	for _, t := range tasks {
		st.Total++
		switch t.Status {
		case id.StatusPending:
			st.Pending++
		case id.StatusInProgress:
			st.InProgress++
		case id.StatusCompleted:
			st.Completed++
		}
		if IsOverdue(t, now) {
			st.Overdue++
		}
		if t.Priority == id.PriorityCritical && !t.Status.IsCompleted() {
			st.Critical++
		}
	}
	return st
}

// Visible keeps the tasks the actor may see, preserving order.
func Visible(tasks []models.Task, actor policy.Actor) []models.Task {
	if policy.CanViewAll(actor.Role) {
		return tasks
	}
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if policy.CanView(actor, t) {
			out = append(out, t)
		}
	}
	return out
}

// Matches reports whether a single task satisfies every criterion.
func Matches(task models.Task, c Criteria, now time.Time) bool {
	return matchesStatus(task, c.Status, now) &&
		matchesPriority(task, c.Priority) &&
		matchesQuery(task, c.Query)
}

// Filter yields the tasks visible to the actor that match the criteria, in
// collection order. The sequence is lazy and may be ranged over repeatedly.
func Filter(tasks []models.Task, actor policy.Actor, c Criteria, now time.Time) iter.Seq[models.Task] {
	return func(yield func(models.Task) bool) {
		for _, t := range tasks {
			if !policy.CanView(actor, t) || !Matches(t, c, now) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

func matchesStatus(task models.Task, f StatusFilter, now time.Time) bool {
	switch f {
	case "", StatusAll:
		return true
	case StatusOverdue:
		return IsOverdue(task, now)
	default:
		return task.Status == id.TaskStatus(f)
	}
}

func matchesPriority(task models.Task, f PriorityFilter) bool {
	if f == "" || f == PriorityAll {
		return true
	}
	return task.Priority == id.Priority(f)
}

func matchesQuery(task models.Task, query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return true
	}
	return pstrings.ContainsFold(&task.Title, q) ||
		pstrings.ContainsFold(task.ClientName, q) ||
		pstrings.ContainsFold(task.MatterRef, q) ||
		pstrings.ContainsFold(task.Description, q)
}
