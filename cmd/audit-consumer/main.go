// Command audit-consumer materializes audit events published to Kafka into
// the audit_events table of another taskdesk deployment or an archive
// database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"taskdesk/internal/platform/config"
	"taskdesk/internal/platform/database"
	"taskdesk/internal/platform/logger"
	"taskdesk/pkg/platform/audit/consumer"
	auditpostgres "taskdesk/pkg/platform/audit/store/postgres"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat).With("component", "audit-consumer")

	if len(cfg.Kafka.Brokers) == 0 || cfg.Database.URL == "" {
		log.Error("kafka.brokers and database.url are required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("audit consumer exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, db, log); err != nil {
			return err
		}
	}

	router := consumer.NewRouter(log, nil)
	router.Register(cfg.Kafka.AuditTopic, consumer.NewStoreHandler(auditpostgres.New(db)))

	c, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, []string{cfg.Kafka.AuditTopic}, router, log)
	if err != nil {
		return err
	}
	defer c.Close()

	log.Info("consuming audit events", "topic", cfg.Kafka.AuditTopic, "group", cfg.Kafka.ConsumerGroup)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
