package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/audit"
	"taskdesk/pkg/platform/httputil"
	adminmw "taskdesk/pkg/platform/middleware/admin"
	"taskdesk/pkg/platform/middleware/metadata"
	"taskdesk/pkg/platform/middleware/request"
	"taskdesk/pkg/platform/middleware/requesttime"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// RouteRegistrar mounts a feature's routes. Authentication is applied by the
// caller through requireAuth.
type RouteRegistrar interface {
	Register(r chi.Router, requireAuth func(http.Handler) http.Handler)
}

// ProtectedRegistrar mounts routes that are always behind authentication.
type ProtectedRegistrar interface {
	Register(r chi.Router)
}

// AuditLister reads recent audit events for the operations endpoint.
type AuditLister interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the pieces NewRouter wires together. Nil optional fields
// leave the corresponding routes out.
type Dependencies struct {
	Logger         *slog.Logger
	Observer       request.RequestObserver
	RequestTimeout time.Duration
	RequireAuth    func(http.Handler) http.Handler
	// AuthRateLimit and APIRateLimit throttle the identity and task routes.
	AuthRateLimit  func(http.Handler) http.Handler
	APIRateLimit   func(http.Handler) http.Handler

	Identity RouteRegistrar
	Tasks    ProtectedRegistrar

	MetricsHandler http.Handler
	HealthChecks   map[string]HealthCheck

	AdminToken string
	Audit      AuditLister
}

// NewRouter builds the service router.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if deps.Observer != nil {
		r.Use(request.LatencyMiddleware(deps.Observer))
	}

	r.Get("/health", handleHealth(deps.HealthChecks))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.RequestTimeout > 0 {
			r.Use(request.Timeout(deps.RequestTimeout))
		}
		r.Use(request.ContentTypeJSON)

		if deps.Identity != nil {
			r.Group(func(r chi.Router) {
				if deps.AuthRateLimit != nil {
					r.Use(deps.AuthRateLimit)
				}
				deps.Identity.Register(r, deps.RequireAuth)
			})
		}
		if deps.Tasks != nil {
			r.Group(func(r chi.Router) {
				r.Use(deps.RequireAuth)
				if deps.APIRateLimit != nil {
					r.Use(deps.APIRateLimit)
				}
				deps.Tasks.Register(r)
			})
		}
		if deps.Audit != nil {
			r.Group(func(r chi.Router) {
				r.Use(adminmw.RequireAdminToken(deps.AdminToken, logger))
				r.Get("/ops/audit", handleRecentAudit(deps.Audit, logger))
			})
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

type auditResponse struct {
	Events []audit.Event `json:"events"`
}

func handleRecentAudit(lister AuditLister, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit := defaultAuditLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
				return
			}
			limit = min(n, maxAuditLimit)
		}
		events, err := lister.ListRecent(ctx, limit)
		if err != nil {
			logger.ErrorContext(ctx, "failed to list audit events",
				"error", err,
				"request_id", request.GetRequestID(ctx),
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
			return
		}
		if events == nil {
			events = []audit.Event{}
		}
		httputil.WriteJSON(w, http.StatusOK, auditResponse{Events: events})
	}
}
