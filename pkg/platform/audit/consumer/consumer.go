// Package consumer reads audit events back from Kafka and hands them to
// topic handlers.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Consumer polls a consumer group and commits offsets after each batch is
// handled.
type Consumer struct {
	client  *kgo.Client
	handler TopicHandler
	logger  *slog.Logger
}

// New joins the consumer group for the given topics.
func New(brokers []string, group string, topics []string, handler TopicHandler, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 || group == "" || len(topics) == 0 {
		return nil, errors.New("brokers, group and topics are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until ctx is cancelled. A batch whose handler fails is not
// committed and will be redelivered after a rebalance or restart.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.WarnContext(ctx, "kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})

		var handleErr error
		fetches.EachRecord(func(r *kgo.Record) {
			if handleErr != nil {
				return
			}
			handleErr = c.handler.Handle(ctx, &Message{Topic: r.Topic, Key: r.Key, Value: r.Value})
		})
		if handleErr != nil {
			c.logger.ErrorContext(ctx, "audit consumer handler failed", "error", handleErr)
			continue
		}
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.logger.WarnContext(ctx, "failed to commit offsets", "error", err)
		}
	}
}

func (c *Consumer) Close() {
	c.client.Close()
}
