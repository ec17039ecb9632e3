package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"taskdesk/internal/identity/cache"
	identityhandler "taskdesk/internal/identity/handler"
	identityservice "taskdesk/internal/identity/service"
	"taskdesk/internal/identity/store/credential"
	"taskdesk/internal/identity/store/revocation"
	"taskdesk/internal/identity/token"
	"taskdesk/internal/platform/config"
	"taskdesk/internal/platform/database"
	"taskdesk/internal/platform/httpserver"
	"taskdesk/internal/platform/logger"
	"taskdesk/internal/platform/metrics"
	platformredis "taskdesk/internal/platform/redis"
	ratelimitmw "taskdesk/internal/ratelimit/middleware"
	ratelimitmodels "taskdesk/internal/ratelimit/models"
	"taskdesk/internal/ratelimit/store/bucket"
	taskhandler "taskdesk/internal/task/handler"
	taskmetrics "taskdesk/internal/task/metrics"
	taskmodels "taskdesk/internal/task/models"
	"taskdesk/internal/task/ports"
	taskservice "taskdesk/internal/task/service"
	"taskdesk/internal/task/store/guarded"
	"taskdesk/internal/task/store/memory"
	taskpostgres "taskdesk/internal/task/store/postgres"
	httptransport "taskdesk/internal/transport/http"
	id "taskdesk/pkg/domain"
	"taskdesk/pkg/platform/audit"
	"taskdesk/pkg/platform/audit/publisher"
	"taskdesk/pkg/platform/audit/publishers/kafka"
	auditmemory "taskdesk/pkg/platform/audit/store/memory"
	auditpostgres "taskdesk/pkg/platform/audit/store/postgres"
	"taskdesk/pkg/platform/circuit"
	authmw "taskdesk/pkg/platform/middleware/auth"
)

// recordStore is what both the Postgres and in-memory stores provide: the
// task record service plus profile creation for signup.
type recordStore interface {
	ports.RecordService
	CreateProfile(ctx context.Context, profile taskmodels.Profile) error
	GetProfile(ctx context.Context, profileID id.ProfileID) (taskmodels.Profile, error)
}

// backends holds the storage chosen from configuration.
type backends struct {
	db          *sql.DB
	redis       *platformredis.Client
	records     recordStore
	credentials identityservice.CredentialStore
	tx          identityservice.TxRunner
	revocations identityservice.RevocationList
	audit       audit.Store
	purge       func(ctx context.Context) (int64, error)
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("taskdesk exited with error", "error", err)
		os.Exit(1)
	}
}

// run wires dependencies, serves HTTP and shuts down when ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	be, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close(log)

	httpMetrics := metrics.New(prometheus.DefaultRegisterer)
	taskMetrics := taskmetrics.New(prometheus.DefaultRegisterer)

	auditPublisher, closeAudit, err := newAuditPublisher(ctx, cfg, be.audit, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	jwt := token.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	identityOpts := []identityservice.Option{
		identityservice.WithLogger(log),
		identityservice.WithMetrics(httpMetrics),
		identityservice.WithAuditPublisher(auditPublisher),
		identityservice.WithAdminSignupCode(cfg.Auth.AdminSignupCode),
		identityservice.WithAccessTokenTTL(cfg.Auth.AccessTokenTTL),
		identityservice.WithBcryptCost(cfg.Auth.BcryptCost),
	}
	if be.redis != nil {
		identityOpts = append(identityOpts, identityservice.WithProfileCache(
			cache.NewRedisProfileCache(be.redis.Client, cfg.Redis.ProfileTTL),
		))
	}
	identity, err := identityservice.New(be.records, be.credentials, be.tx, jwt, be.revocations, identityOpts...)
	if err != nil {
		return err
	}

	breaker := circuit.New("records",
		circuit.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Breaker.SuccessThreshold),
		circuit.WithCooldown(cfg.Breaker.Cooldown),
	)
	records := guarded.New(be.records, breaker, log)
	sessions := taskservice.NewManager(records, identity,
		taskservice.ManagerConfig{IdleTTL: cfg.Session.IdleTTL, Metrics: taskMetrics},
		taskservice.WithLogger(log),
		taskservice.WithAuditPublisher(auditPublisher),
		taskservice.WithTracer(otel.Tracer("taskdesk/task")),
		taskservice.WithDeleteTTL(cfg.Session.DeleteConfirmTTL),
	)
	go sessions.Run(ctx, cfg.Session.SweepInterval)
	go purgeRevocations(ctx, be.purge, cfg.Session.SweepInterval, log)

	limiter := newRateLimiter(cfg, be, log)

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:         log,
		Observer:       httpMetrics,
		RequestTimeout: cfg.Server.RequestTimeout,
		RequireAuth:    authmw.RequireAuth(token.NewJWTServiceAdapter(jwt), identity, log),
		AuthRateLimit:  limiter.RateLimit(ratelimitmodels.ClassAuth),
		APIRateLimit:   limiter.RateLimit(ratelimitmodels.ClassAPI),
		Identity:       identityhandler.New(identity, log),
		Tasks:          taskhandler.New(sessions, identity, log),
		MetricsHandler: promhttp.Handler(),
		HealthChecks:   be.healthChecks(),
		AdminToken:     cfg.Server.AdminToken,
		Audit:          be.audit,
	})

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting taskdesk", "addr", cfg.Server.Addr, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// openBackends picks Postgres when a database URL is configured and the
// in-memory stores otherwise. Redis, when configured, backs token revocation.
func openBackends(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backends, error) {
	be := &backends{}

	if cfg.Database.URL != "" {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.MigrateOnStart {
			if err := database.Migrate(ctx, db, log); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		be.db = db
		be.records = taskpostgres.New(db)
		be.credentials = credential.NewPostgres(db)
		be.tx = newPostgresTx(db)
		be.audit = auditpostgres.New(db)
		trl := revocation.NewPostgresTRL(db)
		be.revocations = trl
		be.purge = trl.PurgeExpired
	} else {
		log.Warn("no database configured, using in-memory stores")
		be.records = memory.New()
		be.credentials = credential.NewInMemoryStore()
		be.tx = inlineTx{}
		be.audit = auditmemory.NewInMemoryStore()
		trl := revocation.NewInMemoryTRL()
		be.revocations = trl
		be.purge = func(context.Context) (int64, error) { return int64(trl.Purge()), nil }
	}

	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		be.close(log)
		return nil, err
	}
	if client != nil {
		be.redis = client
		be.revocations = revocation.NewRedisTRL(client.Client)
		be.purge = nil
	}
	return be, nil
}

// newRateLimiter shares counters through Redis when it is configured.
func newRateLimiter(cfg *config.Config, be *backends, log *slog.Logger) *ratelimitmw.Middleware {
	var store ratelimitmw.BucketStore = bucket.NewInMemoryBucketStore()
	if be.redis != nil {
		store = bucket.NewRedisBucketStore(be.redis.Client)
	}
	return ratelimitmw.New(store, log,
		ratelimitmw.WithDisabled(cfg.RateLimit.Disabled),
		ratelimitmw.WithLimit(ratelimitmodels.ClassAuth, ratelimitmw.Limit{
			Requests: cfg.RateLimit.AuthRequests,
			Window:   cfg.RateLimit.AuthWindow,
		}),
		ratelimitmw.WithLimit(ratelimitmodels.ClassAPI, ratelimitmw.Limit{
			Requests: cfg.RateLimit.APIRequests,
			Window:   cfg.RateLimit.APIWindow,
		}),
	)
}

func (be *backends) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{}
	if be.db != nil {
		checks["database"] = be.db.PingContext
	}
	if be.redis != nil {
		checks["redis"] = be.redis.Health
	}
	return checks
}

func (be *backends) close(log *slog.Logger) {
	if be.redis != nil {
		if err := be.redis.Close(); err != nil {
			log.Warn("failed to close redis", "error", err)
		}
	}
	if be.db != nil {
		if err := be.db.Close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}
}

// newAuditPublisher persists audit events asynchronously and, when brokers
// are configured, fans them out to Kafka.
func newAuditPublisher(ctx context.Context, cfg *config.Config, store audit.Store, log *slog.Logger) (*publisher.Publisher, func(), error) {
	opts := []publisher.Option{
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
	}
	var sink *kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		var err error
		sink, err = kafka.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, kafka.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = kafka.EnsureTopic(topicCtx, sink.Client(), cfg.Kafka.AuditTopic, cfg.Kafka.Partitions, cfg.Kafka.Replication)
		cancel()
		if err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		opts = append(opts, publisher.WithSink(sink))
	}

	pub := publisher.NewPublisher(store, opts...)
	closeFn := func() {
		if err := pub.Close(); err != nil {
			log.Warn("failed to drain audit publisher", "error", err)
		}
		if sink != nil {
			_ = sink.Close()
		}
	}
	return pub, closeFn, nil
}

func purgeRevocations(ctx context.Context, purge func(context.Context) (int64, error), interval time.Duration, log *slog.Logger) {
	if purge == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				log.WarnContext(ctx, "failed to purge revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				log.DebugContext(ctx, "purged revoked tokens", "count", n)
			}
		}
	}
}
