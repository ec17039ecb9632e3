// Package publisher fans audit events out to a store, synchronously or through
// a bounded async buffer.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "taskdesk/pkg/domain"
	audit "taskdesk/pkg/platform/audit"
)

// ErrBufferFull is returned by async publishers when the buffer is saturated.
var ErrBufferFull = errors.New("audit buffer full")

// Sink is an optional secondary destination, such as a Kafka topic.
type Sink interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Publisher writes audit events to a store. In async mode events are queued
// and persisted by a background goroutine that drains on Close.
type Publisher struct {
	store  audit.Store
	sinks  []Sink
	logger *slog.Logger

	async  chan audit.Event
	wg     sync.WaitGroup
	closed sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.async = make(chan audit.Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSink adds a secondary destination. Sink failures are logged, never returned.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sinks = append(p.sinks, sink)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records an event. Missing timestamps and categories are filled in.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.async == nil {
		return p.write(ctx, event)
	}

	select {
	case p.async <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns the events recorded for an actor.
func (p *Publisher) List(ctx context.Context, actorID id.ProfileID) ([]audit.Event, error) {
	return p.store.ListByActor(ctx, actorID)
}

// Close drains the async buffer.
func (p *Publisher) Close() error {
	p.closed.Do(func() {
		if p.async != nil {
			close(p.async)
			p.wg.Wait()
		}
	})
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.async {
		if err := p.write(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event", "action", event.Action, "error", err)
		}
	}
}

func (p *Publisher) write(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil && p.logger != nil {
			p.logger.WarnContext(ctx, "audit sink publish failed", "action", event.Action, "error", err)
		}
	}
	return nil
}
