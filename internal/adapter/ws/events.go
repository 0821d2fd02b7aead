package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
)

// BroadcastEvent implements broadcast.Broadcaster. Decision records are
// routed by correlation id; other payloads reach every client.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal ws event payload", "type", eventType, "error", err)
		return
	}

	var corr string
	if rec, ok := payload.(*decision.Record); ok {
		corr = rec.CorrelationID
	}
	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	}, corr)
}
