// Package service coordinates the optimistic task protocol for one
// authenticated actor.
//
// Every mutation follows the same steps: validate and authorize, apply the
// change to the local collection under the session lock, call the record
// service without holding the lock, then commit or roll back under the lock.
// Commits and rollbacks carry the version tag captured at apply time and are
// discarded when a newer apply has touched the same record since.
package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"taskdesk/internal/task/derive"
	"taskdesk/internal/task/metrics"
	"taskdesk/internal/task/models"
	"taskdesk/internal/task/policy"
	"taskdesk/internal/task/ports"
	"taskdesk/internal/task/state"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/requestcontext"
)

const defaultDeleteTTL = 5 * time.Minute

// Session is the task state of one authenticated actor.
type Session struct {
	records        ports.RecordService
	identity       ports.Identity
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher
	tracer         trace.Tracer
	deleteTTL      time.Duration

	mu      sync.Mutex
	profile *models.Profile
	coll    *state.Collection
	pending map[ConfirmationToken]pendingDelete
}

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Session) {
		s.auditPublisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) {
		s.tracer = tracer
	}
}

// WithDeleteTTL bounds how long a delete confirmation token stays valid.
func WithDeleteTTL(ttl time.Duration) Option {
	return func(s *Session) {
		if ttl > 0 {
			s.deleteTTL = ttl
		}
	}
}

// NewSession constructs an unloaded session. Call Load before anything else.
func NewSession(records ports.RecordService, identity ports.Identity, opts ...Option) (*Session, error) {
	if records == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "record service is required")
	}
	if identity == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "identity is required")
	}
	s := &Session{
		records:   records,
		identity:  identity,
		deleteTTL: defaultDeleteTTL,
		coll:      state.New(nil, nil),
		pending:   make(map[ConfirmationToken]pendingDelete),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("taskdesk/internal/task/service")
	}
	return s, nil
}

// Load resolves the current user and fetches their visible tasks and, for
// admins, the profile roster. It replaces whatever the session held before.
func (s *Session) Load(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "task.session.load")
	defer span.End()

	profileID, ok := s.identity.CurrentUser(ctx)
	if !ok {
		err := dErrors.New(dErrors.CodeUnauthorized, "not signed in")
		s.recordSpanError(span, err)
		return err
	}
	profile, err := s.identity.GetProfile(ctx, profileID)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to load profile")
		s.recordSpanError(span, err)
		return err
	}
	actor := policy.ActorOf(profile)

	var (
		tasks    []models.Task
		profiles []models.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		fetched, err := s.records.ListTasks(gctx, visibilityFor(actor))
		s.metrics.ObserveRemoteLatency("list_tasks", time.Since(start))
		if err != nil {
			return err
		}
		tasks = fetched
		return nil
	})
	if policy.CanManageTeam(actor.Role) {
		g.Go(func() error {
			start := time.Now()
			fetched, err := s.records.ListProfiles(gctx, ports.OrderByFullName)
			s.metrics.ObserveRemoteLatency("list_profiles", time.Since(start))
			if err != nil {
				return err
			}
			profiles = fetched
			return nil
		})
	} else {
		profiles = []models.Profile{profile}
	}
	if err := g.Wait(); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to load tasks")
		s.recordSpanError(span, err)
		return err
	}

	visible := derive.Visible(tasks, actor)
	if len(visible) != len(tasks) {
		s.logger.WarnContext(ctx, "record service returned tasks outside the actor's visibility",
			"profile_id", profile.ID,
			"dropped", len(tasks)-len(visible),
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	s.mu.Lock()
	s.profile = &profile
	s.coll.Reset(visible, profiles)
	clear(s.pending)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "task session loaded",
		"profile_id", profile.ID,
		"role", profile.Role,
		"tasks", len(visible),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Profile returns the loaded profile of the session owner.
func (s *Session) Profile() (models.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return models.Profile{}, false
	}
	return s.profile.Clone(), true
}

// Tasks returns a copy of the collection in display order.
func (s *Session) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Tasks()
}

// Task returns one task by id.
func (s *Session) Task(taskID id.TaskID) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _, ok := s.coll.Task(taskID)
	if !ok {
		return models.Task{}, dErrors.New(dErrors.CodeNotFound, "task not found")
	}
	return t, nil
}

// Profiles returns a copy of the profile roster.
func (s *Session) Profiles() []models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Profiles()
}

// Snapshot returns a deep copy of the whole collection.
func (s *Session) Snapshot() state.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Snapshot()
}

// View derives the dashboard for the given criteria at the request time.
func (s *Session) View(ctx context.Context, c derive.Criteria) (derive.View, error) {
	actor, err := s.actor()
	if err != nil {
		return derive.View{}, err
	}
	tasks := s.Tasks()
	return derive.Derive(tasks, actor, c, requestcontext.Now(ctx)), nil
}

// Permissions reports the per-task controls the actor may use.
func (s *Session) Permissions(task models.Task) policy.Permissions {
	actor, err := s.actor()
	if err != nil {
		return policy.Permissions{}
	}
	return policy.For(actor, task)
}

// AssignmentOptions lists the profiles an admin may assign tasks to, ordered
// by display name. Staff get no options.
func (s *Session) AssignmentOptions() ([]models.Profile, error) {
	actor, err := s.actor()
	if err != nil {
		return nil, err
	}
	if !policy.CanReassign(actor.Role) {
		return nil, nil
	}
	profiles := s.Profiles()
	slices.SortStableFunc(profiles, func(a, b models.Profile) int {
		return compareFold(a.DisplayName(), b.DisplayName())
	})
	return profiles, nil
}

// TeamView is the admin roster projection.
type TeamView struct {
	Profiles []models.Profile
	Admins   []models.Profile
	Staff    []models.Profile
	Stats    derive.TeamStats
	// Self is the session owner, whose row offers no role control.
	Self id.ProfileID
}

// Team builds the roster filtered by query. Admin only.
func (s *Session) Team(ctx context.Context, query string) (TeamView, error) {
	actor, err := s.actor()
	if err != nil {
		return TeamView{}, err
	}
	if !policy.CanManageTeam(actor.Role) {
		s.deny(ctx, actor, "team", actor.ID.String(), "team management requires admin")
		return TeamView{}, dErrors.New(dErrors.CodeForbidden, "only admins can manage the team")
	}
	all := s.Profiles()
	filtered := derive.FilterProfiles(all, query)
	admins, staff := derive.GroupByRole(filtered)
	return TeamView{
		Profiles: filtered,
		Admins:   admins,
		Staff:    staff,
		Stats:    derive.ComputeTeamStats(all),
		Self:     actor.ID,
	}, nil
}

func (s *Session) actor() (policy.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actorLocked()
}

func (s *Session) actorLocked() (policy.Actor, error) {
	if s.profile == nil {
		return policy.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "session not loaded")
	}
	return policy.ActorOf(*s.profile), nil
}

func visibilityFor(actor policy.Actor) ports.VisibilityFilter {
	if policy.CanViewAll(actor.Role) {
		return ports.VisibilityFilter{}
	}
	self := actor.ID
	return ports.VisibilityFilter{AssignedTo: &self}
}

// remote runs a record service call with latency and pending-gauge tracking.
func (s *Session) remote(operation string, call func() error) error {
	s.metrics.MutationStarted()
	defer s.metrics.MutationFinished()
	start := time.Now()
	err := call()
	s.metrics.ObserveRemoteLatency(operation, time.Since(start))
	return err
}

func (s *Session) recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, dErrors.MessageOf(err))
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
