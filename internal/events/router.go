package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/phxgg/kickbridge/internal/domain"
)

// HandlerFunc processes one typed event payload. Deliveries may be retried
// upstream, so handlers must tolerate seeing the same message twice.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Router dispatches a verified payload two ways: to the subject's registry
// subscriber (keyed off the broadcaster in the payload) and to the static
// per-type handler table.
type Router struct {
	registry *Registry
	handlers map[domain.EventType]HandlerFunc
	known    map[domain.EventType]struct{}
}

func NewRouter(registry *Registry) *Router {
	known := make(map[domain.EventType]struct{}, len(domain.KnownEventTypes))
	for _, t := range domain.KnownEventTypes {
		known[t] = struct{}{}
	}
	return &Router{
		registry: registry,
		handlers: make(map[domain.EventType]HandlerFunc),
		known:    known,
	}
}

// Handle installs the handler for one event type. The table is built once at
// startup; Handle is not safe to call concurrently with Route.
func (r *Router) Handle(eventType domain.EventType, fn HandlerFunc) {
	r.handlers[eventType] = fn
}

// Route fans the payload out. A payload without any routing key skips the
// local fan-out but still reaches the type handler; an unrecognized event
// type is logged and acknowledged so new upstream types never fail delivery.
func (r *Router) Route(ctx context.Context, eventType domain.EventType, payload json.RawMessage) error {
	if key := routingKey(payload); key != "" {
		r.registry.Emit(key, eventType, payload)
	}

	if _, ok := r.known[eventType]; !ok {
		slog.Info("Ignoring unknown webhook event type", "event_type", eventType)
		return nil
	}

	handler, ok := r.handlers[eventType]
	if !ok {
		return nil
	}
	if err := handler(ctx, payload); err != nil {
		return fmt.Errorf("handler for %s failed: %w", eventType, err)
	}
	return nil
}

// routingKey extracts the subject id from the payload's broadcaster property:
// user id first, then username, then channel slug. Empty means no local
// fan-out.
func routingKey(payload json.RawMessage) string {
	var envelope domain.EventEnvelopePayload
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Broadcaster == nil {
		return ""
	}

	b := envelope.Broadcaster
	if b.UserID != 0 {
		return strconv.FormatInt(b.UserID, 10)
	}
	if b.Username != "" {
		return b.Username
	}
	if b.ChannelSlug != "" {
		return b.ChannelSlug
	}
	return ""
}
