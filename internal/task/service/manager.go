package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"taskdesk/internal/task/metrics"
	"taskdesk/internal/task/ports"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
)

// Manager keeps one loaded Session per authenticated profile.
type Manager struct {
	records  ports.RecordService
	identity ports.Identity
	metrics  *metrics.Metrics
	idleTTL  time.Duration
	opts     []Option

	group    singleflight.Group
	mu       sync.Mutex
	sessions map[id.ProfileID]*managedSession
}

type managedSession struct {
	session  *Session
	lastUsed time.Time
}

// ManagerConfig tunes session retention.
type ManagerConfig struct {
	IdleTTL time.Duration
	Metrics *metrics.Metrics
}

// NewManager builds a manager. opts are applied to every session it creates.
func NewManager(records ports.RecordService, identity ports.Identity, cfg ManagerConfig, opts ...Option) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &Manager{
		records:  records,
		identity: identity,
		metrics:  cfg.Metrics,
		idleTTL:  cfg.IdleTTL,
		opts:     append([]Option{WithMetrics(cfg.Metrics)}, opts...),
		sessions: make(map[id.ProfileID]*managedSession),
	}
}

// Current returns the session of the signed-in user, loading it on first use.
// Concurrent first requests for the same user share one load, which runs
// detached from the cancellation of whichever request started it.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	profileID, ok := m.identity.CurrentUser(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "not signed in")
	}

	m.mu.Lock()
	if entry, ok := m.sessions[profileID]; ok {
		entry.lastUsed = time.Now()
		m.mu.Unlock()
		return entry.session, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(profileID.String(), func() (any, error) {
		session, err := NewSession(m.records, m.identity, m.opts...)
		if err != nil {
			return nil, err
		}
		if err := session.Load(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.sessions[profileID] = &managedSession{session: session, lastUsed: time.Now()}
		m.metrics.SetActiveSessions(len(m.sessions))
		m.mu.Unlock()
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Refresh reloads the signed-in user's session from the record service.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	session, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := session.Load(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// Invalidate drops a profile's session, e.g. after their role changed.
func (m *Manager) Invalidate(profileID id.ProfileID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, profileID)
	m.metrics.SetActiveSessions(len(m.sessions))
}

// Sweep evicts sessions idle since before now minus the idle TTL and
// returns how many were dropped.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for profileID, entry := range m.sessions {
		if now.Sub(entry.lastUsed) > m.idleTTL {
			delete(m.sessions, profileID)
			evicted++
		}
	}
	m.metrics.SetActiveSessions(len(m.sessions))
	return evicted
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
