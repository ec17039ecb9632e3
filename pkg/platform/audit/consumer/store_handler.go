package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	audit "taskdesk/pkg/platform/audit"
)

// StoreHandler materializes consumed audit events into a queryable store.
type StoreHandler struct {
	store audit.Store
}

func NewStoreHandler(store audit.Store) *StoreHandler {
	return &StoreHandler{store: store}
}

func (h *StoreHandler) Handle(ctx context.Context, msg *Message) error {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Poison messages are skipped so the partition keeps moving.
		return nil
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if err := h.store.Append(ctx, event); err != nil {
		return fmt.Errorf("append consumed audit event: %w", err)
	}
	return nil
}
