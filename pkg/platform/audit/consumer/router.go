package consumer

import (
	"context"
	"log/slog"
)

// Message is a consumed record reduced to what handlers need.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// TopicHandler handles messages from a specific topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Router dispatches messages to topic-specific handlers.
type Router struct {
	handlers map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

// NewRouter creates a topic router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a specific topic.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.handlers[topic] = handler
}

// Handle routes the message to the appropriate topic handler.
func (r *Router) Handle(ctx context.Context, msg *Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		if r.logger != nil {
			r.logger.Warn("no handler for topic, skipping message",
				"topic", msg.Topic,
				"key", string(msg.Key),
			)
		}
		return nil // commit to avoid redelivery
	}
	return handler.Handle(ctx, msg)
}
