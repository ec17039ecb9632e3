package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP and identity metrics of the service.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	UsersCreated    *prometheus.CounterVec
	Logins          *prometheus.CounterVec
}

// New creates and registers the metrics on reg. A nil reg builds unregistered
// collectors, which tests use to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskdesk_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
		UsersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_users_created_total",
			Help: "Total number of users created, by granted role",
		}, []string{"role"}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// IncrementUsersCreated increments the users created counter by 1
func (m *Metrics) IncrementUsersCreated(role string) {
	if m == nil {
		return
	}
	m.UsersCreated.WithLabelValues(role).Inc()
}

func (m *Metrics) IncrementLogin(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}
