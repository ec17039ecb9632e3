package derive

import (
	"iter"
	"slices"
	"time"

	"taskdesk/internal/task/models"
	"taskdesk/internal/task/policy"
)

// View is the dashboard projection: counters over every visible task plus the
// filtered list.
type View struct {
	Stats Stats
	Tasks iter.Seq[models.Task]
}

// Collect materializes the filtered tasks.
func (v View) Collect() []models.Task {
	return slices.Collect(v.Tasks)
}

// Derive builds the dashboard view. Stats ignore the criteria; they always
// describe the actor's whole visible set.
func Derive(tasks []models.Task, actor policy.Actor, c Criteria, now time.Time) View {
	return View{
		Stats: ComputeStats(Visible(tasks, actor), now),
		Tasks: Filter(tasks, actor, c, now),
	}
}
