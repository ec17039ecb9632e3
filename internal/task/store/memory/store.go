// Package memory is an in-process record service for tasks and profiles.
// It backs local development and handler tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"taskdesk/internal/task/models"
	"taskdesk/internal/task/ports"
	id "taskdesk/pkg/domain"
	"taskdesk/pkg/platform/sentinel"
)

// Store keeps tasks and profiles in maps guarded by one lock. Returned tasks
// carry a resolved Assignee, like the Postgres store's join.
type Store struct {
	mu       sync.RWMutex
	tasks    map[id.TaskID]models.Task
	profiles map[id.ProfileID]models.Profile
	clock    func() time.Time
}

var _ ports.RecordService = (*Store)(nil)

type Option func(*Store)

// WithClock sets the clock used for created_at and updated_at.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		tasks:    make(map[id.TaskID]models.Task),
		profiles: make(map[id.ProfileID]models.Profile),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListTasks returns the tasks matching filter, newest first. Equal creation
// times fall back to descending id, as in the Postgres store.
func (s *Store) ListTasks(_ context.Context, filter ports.VisibilityFilter) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.AssignedTo != nil && !t.IsAssignedTo(*filter.AssignedTo) {
			continue
		}
		out = append(out, s.withAssignee(t))
	}
	slices.SortFunc(out, func(a, b models.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID.String(), a.ID.String())
	})
	return out, nil
}

func (s *Store) CreateTask(_ context.Context, task models.NewTask) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	creator := task.CreatedBy
	t := models.Task{
		ID:        id.NewTaskID(),
		Status:    task.Status,
		CreatedBy: &creator,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.ApplyDetails(task.TaskDetails)
	if task.CompletedAt != nil {
		completed := *task.CompletedAt
		t.CompletedAt = &completed
	}
	s.tasks[t.ID] = t
	return s.withAssignee(t), nil
}

func (s *Store) UpdateTask(_ context.Context, taskID id.TaskID, patch models.TaskPatch) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("task %s: %w", taskID, sentinel.ErrNotFound)
	}
	if patch.Details != nil {
		t.ApplyDetails(*patch.Details)
	}
	t.Status = patch.Status
	t.CompletedAt = nil
	if patch.CompletedAt != nil {
		completed := *patch.CompletedAt
		t.CompletedAt = &completed
	}
	t.UpdatedAt = s.clock()
	s.tasks[taskID] = t
	return s.withAssignee(t), nil
}

func (s *Store) DeleteTask(_ context.Context, taskID id.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return fmt.Errorf("task %s: %w", taskID, sentinel.ErrNotFound)
	}
	delete(s.tasks, taskID)
	return nil
}

// ListProfiles returns every profile. Profiles without a full name sort last
// when ordering by name.
func (s *Store) ListProfiles(_ context.Context, order ports.ProfileOrder) ([]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	switch order {
	case ports.OrderByCreatedAt:
		slices.SortFunc(out, func(a, b models.Profile) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	default:
		slices.SortFunc(out, func(a, b models.Profile) int {
			if c := compareNames(a.FullName, b.FullName); c != 0 {
				return c
			}
			return strings.Compare(a.Email, b.Email)
		})
	}
	return out, nil
}

func (s *Store) UpdateProfileRole(_ context.Context, profileID id.ProfileID, role id.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return fmt.Errorf("profile %s: %w", profileID, sentinel.ErrNotFound)
	}
	p.Role = role
	s.profiles[profileID] = p
	return nil
}

// CreateProfile registers a new profile. Email addresses are unique,
// compared case-insensitively.
func (s *Store) CreateProfile(_ context.Context, profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.ID]; ok {
		return fmt.Errorf("profile %s: %w", profile.ID, sentinel.ErrConflict)
	}
	for _, p := range s.profiles {
		if strings.EqualFold(p.Email, profile.Email) {
			return fmt.Errorf("profile email: %w", sentinel.ErrConflict)
		}
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = s.clock()
	}
	s.profiles[profile.ID] = profile.Clone()
	return nil
}

func (s *Store) GetProfile(_ context.Context, profileID id.ProfileID) (models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return models.Profile{}, fmt.Errorf("profile %s: %w", profileID, sentinel.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *Store) withAssignee(t models.Task) models.Task {
	out := t.Clone()
	out.Assignee = nil
	if t.AssignedTo != nil {
		if p, ok := s.profiles[*t.AssignedTo]; ok {
			out.Assignee = p.AsAssignee()
		}
	}
	return out
}

func compareNames(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(strings.ToLower(*a), strings.ToLower(*b))
}
