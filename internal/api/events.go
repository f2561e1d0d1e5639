package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/vtmaps/mapview/internal/service"
)

// EventHandler streams viewer change events to the UI via SSE.
type EventHandler struct {
	bus *service.EventBus
}

// NewEventHandler creates an event handler subscribed to bus.
func NewEventHandler(bus *service.EventBus) *EventHandler {
	return &EventHandler{bus: bus}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events, huma.OperationTags("events"))
}

// Events pushes every selection transition and layer lifecycle change as it
// happens: selection exports land as a Datastar signal patch, everything
// else as a custom event the map page listens for.
func (h *EventHandler) Events(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			ch := h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					if ev.Resource == "selection" {
						sse.Signals(map[string]any{"selection": ev.Payload})
					}
					sse.DispatchCustomEvent("viewer-changed", map[string]any{
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
					})
				}
			}
		},
	}, nil
}
