// Package state holds the session's local copy of tasks and profiles.
//
// The collection is not safe for concurrent use; the session serializes every
// apply, commit and rollback step behind its own mutex. Reads hand out deep
// copies so nothing outside the session can alias the stored records.
package state

import (
	"slices"

	"taskdesk/internal/task/models"
	id "taskdesk/pkg/domain"
)

// Collection is the ordered task list (newest first) plus the profile roster.
//
// Next to the displayed records it keeps the last record the record service
// confirmed for every task and the last confirmed role of every profile.
// Rollbacks restore those, never an apply-time copy that may itself have been
// an unconfirmed optimistic record.
type Collection struct {
	tasks    []models.Task
	profiles []models.Profile
	version  uint64

	confirmed map[id.TaskID]models.Task
	// rolledBack holds the version of a confirmed record put back by a
	// rollback. A late commit may replace such a record.
	rolledBack  map[id.TaskID]uint64
	provisional map[id.TaskID]struct{}

	// profileVersions tags profiles touched by an optimistic role change.
	profileVersions map[id.ProfileID]uint64
	confirmedRoles  map[id.ProfileID]id.Role
}

// New builds a collection from records fetched from the record service.
func New(tasks []models.Task, profiles []models.Profile) *Collection {
	c := &Collection{}
	c.Reset(tasks, profiles)
	return c
}

// Reset replaces the whole collection. Every task receives a fresh version
// and counts as confirmed.
func (c *Collection) Reset(tasks []models.Task, profiles []models.Profile) {
	c.tasks = models.CloneTasks(tasks)
	c.confirmed = make(map[id.TaskID]models.Task, len(c.tasks))
	for i := range c.tasks {
		c.tasks[i].Version = c.NextVersion()
		c.confirmed[c.tasks[i].ID] = c.tasks[i].Clone()
	}
	c.rolledBack = make(map[id.TaskID]uint64)
	c.provisional = make(map[id.TaskID]struct{})
	c.profiles = cloneProfiles(profiles)
	c.profileVersions = make(map[id.ProfileID]uint64)
	c.confirmedRoles = make(map[id.ProfileID]id.Role, len(c.profiles))
	for _, p := range c.profiles {
		c.confirmedRoles[p.ID] = p.Role
	}
}

// NextVersion returns a new monotonic version tag.
func (c *Collection) NextVersion() uint64 {
	c.version++
	return c.version
}

// Tasks returns a deep copy of the tasks in collection order.
func (c *Collection) Tasks() []models.Task {
	return models.CloneTasks(c.tasks)
}

// View returns the stored tasks without copying. Callers must not retain or
// mutate the slice past the critical section that produced it.
func (c *Collection) View() []models.Task {
	return c.tasks
}

// Profiles returns a deep copy of the profiles in roster order.
func (c *Collection) Profiles() []models.Profile {
	return cloneProfiles(c.profiles)
}

func (c *Collection) Len() int { return len(c.tasks) }

// Task looks up a task by id and returns a copy with its index.
func (c *Collection) Task(taskID id.TaskID) (models.Task, int, bool) {
	i := c.indexOf(taskID)
	if i < 0 {
		return models.Task{}, -1, false
	}
	return c.tasks[i].Clone(), i, true
}

// Profile looks up a profile by id.
func (c *Collection) Profile(profileID id.ProfileID) (models.Profile, bool) {
	for _, p := range c.profiles {
		if p.ID == profileID {
			return p.Clone(), true
		}
	}
	return models.Profile{}, false
}

// Insert places a provisional task at the front and returns its version. The
// task stays provisional until CommitCreate or DiscardProvisional.
func (c *Collection) Insert(t models.Task) uint64 {
	t = t.Clone()
	t.Version = c.NextVersion()
	c.tasks = slices.Insert(c.tasks, 0, t)
	c.provisional[t.ID] = struct{}{}
	return t.Version
}

// IsProvisional reports whether the task is an unconfirmed create.
func (c *Collection) IsProvisional(taskID id.TaskID) bool {
	_, ok := c.provisional[taskID]
	return ok
}

// CommitCreate swaps the provisional task for the server record while the
// provisional one still carries version. It returns the new version.
func (c *Collection) CommitCreate(provisionalID id.TaskID, version uint64, created models.Task) (uint64, bool) {
	delete(c.provisional, provisionalID)
	i := c.indexOf(provisionalID)
	if i < 0 || c.tasks[i].Version != version {
		return 0, false
	}
	created = created.Clone()
	created.Version = c.NextVersion()
	c.tasks[i] = created
	c.confirmed[created.ID] = created.Clone()
	return created.Version, true
}

// DiscardProvisional removes a provisional task while it still carries
// version.
func (c *Collection) DiscardProvisional(taskID id.TaskID, version uint64) bool {
	delete(c.provisional, taskID)
	i := c.indexOf(taskID)
	if i < 0 || c.tasks[i].Version != version {
		return false
	}
	c.tasks = slices.Delete(c.tasks, i, i+1)
	return true
}

// Replace applies an optimistic record over the task with the same id and
// returns its version. It reports false when the task is gone.
func (c *Collection) Replace(t models.Task) (uint64, bool) {
	i := c.indexOf(t.ID)
	if i < 0 {
		return 0, false
	}
	t = t.Clone()
	t.Version = c.NextVersion()
	c.tasks[i] = t
	delete(c.rolledBack, t.ID)
	return t.Version, true
}

// Commit records server as the confirmed state of the task. The displayed
// record is replaced when it is still the optimistic record tagged version,
// or when a rollback left the previously confirmed record in place. A newer
// optimistic record is left alone. It returns the new version.
func (c *Collection) Commit(taskID id.TaskID, version uint64, server models.Task) (uint64, bool) {
	server = server.Clone()
	server.Version = 0
	c.confirmed[taskID] = server

	i := c.indexOf(taskID)
	if i < 0 {
		return 0, false
	}
	current := c.tasks[i].Version
	if current != version && c.rolledBack[taskID] != current {
		return 0, false
	}
	server.Version = c.NextVersion()
	c.tasks[i] = server.Clone()
	c.confirmed[taskID] = server.Clone()
	delete(c.rolledBack, taskID)
	return server.Version, true
}

// Rollback undoes the optimistic record tagged version by putting back the
// last confirmed record. A rollback for a record that has since been
// replaced is discarded.
func (c *Collection) Rollback(taskID id.TaskID, version uint64) bool {
	i := c.indexOf(taskID)
	if i < 0 || c.tasks[i].Version != version {
		return false
	}
	confirmed, ok := c.confirmed[taskID]
	if !ok {
		return false
	}
	if confirmed.Version == 0 {
		confirmed.Version = c.NextVersion()
		c.confirmed[taskID] = confirmed
	}
	c.tasks[i] = confirmed.Clone()
	c.rolledBack[taskID] = confirmed.Version
	return true
}

// Remove deletes the task and returns the removed record and its index. The
// confirmed record is kept until Forget so a failed delete can restore it.
func (c *Collection) Remove(taskID id.TaskID) (models.Task, int, bool) {
	i := c.indexOf(taskID)
	if i < 0 {
		return models.Task{}, -1, false
	}
	removed := c.tasks[i]
	c.tasks = slices.Delete(c.tasks, i, i+1)
	return removed, i, true
}

// RestoreAt reinserts a removed task at its old index, clamped to the current
// length. When the task had a confirmed record and t was an optimistic one,
// the confirmed record is restored instead. It reports false when a task with
// the same id is already present.
func (c *Collection) RestoreAt(t models.Task, index int) bool {
	if c.indexOf(t.ID) >= 0 {
		return false
	}
	restore := t.Clone()
	if confirmed, ok := c.confirmed[t.ID]; ok && confirmed.Version != t.Version {
		if confirmed.Version == 0 {
			confirmed.Version = c.NextVersion()
			c.confirmed[t.ID] = confirmed
		}
		restore = confirmed.Clone()
		c.rolledBack[t.ID] = confirmed.Version
	}
	index = max(0, min(index, len(c.tasks)))
	c.tasks = slices.Insert(c.tasks, index, restore)
	return true
}

// Forget drops the bookkeeping of a task the record service deleted.
func (c *Collection) Forget(taskID id.TaskID) {
	delete(c.confirmed, taskID)
	delete(c.rolledBack, taskID)
	delete(c.provisional, taskID)
}

// SetProfileRole changes a profile's role and returns the previous role and
// the version tag of this change.
func (c *Collection) SetProfileRole(profileID id.ProfileID, role id.Role) (id.Role, uint64, bool) {
	for i := range c.profiles {
		if c.profiles[i].ID == profileID {
			prev := c.profiles[i].Role
			if _, ok := c.confirmedRoles[profileID]; !ok {
				c.confirmedRoles[profileID] = prev
			}
			c.profiles[i].Role = role
			v := c.NextVersion()
			c.profileVersions[profileID] = v
			return prev, v, true
		}
	}
	return "", 0, false
}

// CommitProfileRole records role as the confirmed role of the profile.
func (c *Collection) CommitProfileRole(profileID id.ProfileID, role id.Role) {
	c.confirmedRoles[profileID] = role
}

// RestoreProfileRole puts back the last confirmed role while no newer role
// change has been applied to the profile since version.
func (c *Collection) RestoreProfileRole(profileID id.ProfileID, version uint64) bool {
	if c.profileVersions[profileID] != version {
		return false
	}
	role, ok := c.confirmedRoles[profileID]
	if !ok {
		return false
	}
	for i := range c.profiles {
		if c.profiles[i].ID == profileID {
			c.profiles[i].Role = role
			return true
		}
	}
	return false
}

// ProfileVersion reports the tag of the latest role change applied to the
// profile, or zero.
func (c *Collection) ProfileVersion(profileID id.ProfileID) uint64 {
	return c.profileVersions[profileID]
}

// Snapshot is a deep copy of the whole collection.
type Snapshot struct {
	Tasks    []models.Task
	Profiles []models.Profile
}

func (c *Collection) Snapshot() Snapshot {
	return Snapshot{Tasks: c.Tasks(), Profiles: c.Profiles()}
}

func (c *Collection) indexOf(taskID id.TaskID) int {
	return slices.IndexFunc(c.tasks, func(t models.Task) bool { return t.ID == taskID })
}

func cloneProfiles(profiles []models.Profile) []models.Profile {
	if profiles == nil {
		return nil
	}
	out := make([]models.Profile, len(profiles))
	for i := range profiles {
		out[i] = profiles[i].Clone()
	}
	return out
}
