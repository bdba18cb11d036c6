package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/port/broadcast"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// BroadcastEvent marshals a typed event and broadcasts it. Event types are
// the audit event names, e.g. "task.assigned" or "sprint.executed".
func (h *Hub) BroadcastEvent(ctx context.Context, eventType event.Type, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    string(eventType),
		Payload: json.RawMessage(data),
	})
}
