package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for MutationsTotal.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeDenied     = "denied"
	OutcomeInvalid    = "invalid"
	OutcomeNoop       = "noop"
)

// Metrics provides observability for the task module.
type Metrics struct {
	// Mutation outcomes by operation (create, update, status, delete, role)
	MutationsTotal *prometheus.CounterVec

	// Commits and rollbacks discarded because a newer apply superseded them
	StaleOutcomes *prometheus.CounterVec

	// Record service round-trip latency by operation
	RemoteLatency *prometheus.HistogramVec

	// Mutations whose remote call has not resolved yet
	PendingMutations prometheus.Gauge

	// Sessions held by the session manager
	ActiveSessions prometheus.Gauge
}

// New registers the task metrics with reg. A nil reg yields unregistered
// collectors, which tests use to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_task_mutations_total",
			Help: "Task and role mutations by operation and outcome",
		}, []string{"operation", "outcome"}),

		StaleOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_task_stale_outcomes_total",
			Help: "Commits or rollbacks discarded because the record changed again",
		}, []string{"operation", "phase"}),

		RemoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskdesk_task_remote_duration_seconds",
			Help:    "Duration of record service calls by operation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),

		PendingMutations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskdesk_task_pending_mutations",
			Help: "Optimistic mutations awaiting the record service",
		}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskdesk_task_active_sessions",
			Help: "Task sessions currently held in memory",
		}),
	}
}

func (m *Metrics) IncrementMutation(operation, outcome string) {
	if m != nil {
		m.MutationsTotal.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Metrics) IncrementStale(operation, phase string) {
	if m != nil {
		m.StaleOutcomes.WithLabelValues(operation, phase).Inc()
	}
}

func (m *Metrics) ObserveRemoteLatency(operation string, d time.Duration) {
	if m != nil {
		m.RemoteLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) MutationStarted() {
	if m != nil {
		m.PendingMutations.Inc()
	}
}

func (m *Metrics) MutationFinished() {
	if m != nil {
		m.PendingMutations.Dec()
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.ActiveSessions.Set(float64(n))
	}
}
