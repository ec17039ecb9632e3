//go:build integration

package kafka_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "taskdesk/pkg/domain"
	audit "taskdesk/pkg/platform/audit"
	"taskdesk/pkg/platform/audit/consumer"
	"taskdesk/pkg/platform/audit/publishers/kafka"
	"taskdesk/pkg/platform/audit/store/memory"
	"taskdesk/pkg/testutil/containers"
)

type KafkaRoundTripSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaRoundTripSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaRoundTripSuite))
}

func (s *KafkaRoundTripSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaRoundTripSuite) TestPublishAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	const topic = "taskdesk.audit.roundtrip"

	pub, err := kafka.New(s.redpanda.Brokers, topic, kafka.WithLogger(logger))
	s.Require().NoError(err)
	defer pub.Close()
	s.Require().NoError(kafka.EnsureTopic(ctx, pub.Client(), topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, pub.Client(), topic, 1, 1), "existing topic is not an error")

	actor := id.NewProfileID()
	taskID := id.NewTaskID().String()
	s.Require().NoError(pub.Publish(ctx, audit.Event{
		Category:  audit.CategoryOperations,
		Timestamp: time.Now().UTC(),
		ActorID:   actor,
		Subject:   taskID,
		Action:    string(audit.EventTaskCreated),
	}))

	store := memory.NewInMemoryStore()
	router := consumer.NewRouter(logger, nil)
	router.Register(topic, consumer.NewStoreHandler(store))
	c, err := consumer.New(s.redpanda.Brokers, "taskdesk-roundtrip", []string{topic}, router, logger)
	s.Require().NoError(err)
	defer c.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = c.Run(runCtx) }()

	s.Eventually(func() bool {
		events, err := store.ListByActor(ctx, actor)
		return err == nil && len(events) == 1
	}, 30*time.Second, 200*time.Millisecond)

	events, err := store.ListByActor(ctx, actor)
	s.Require().NoError(err)
	s.Equal(taskID, events[0].Subject)
	s.Equal(string(audit.EventTaskCreated), events[0].Action)
}
