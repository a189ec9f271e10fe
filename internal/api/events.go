package api

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/logwire/internal/events"
	"github.com/smazurov/logwire/internal/metrics/exporters"
)

// registerSSERoutes registers the configuration event stream.
func (s *Server) registerSSERoutes() {
	eventTypes := map[string]any{
		"config-applied": events.ConfigAppliedEvent{},
		"config-failed":  events.ConfigFailedEvent{},
	}
	// Stats events come from the exporter's registry
	maps.Copy(eventTypes, exporters.GetEventTypes())

	// Register SSE endpoint with event type mapping
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of configuration loads and per-level record counts",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Create event channel for this connection
		eventCh := make(chan any, 10)

		// Subscribe to all event types using event bus
		unsubscribers := []func(){
			events.SubscribeToChannel[events.ConfigAppliedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConfigFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.LogStatsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Send the current configuration first
		if err := send.Data(events.ConfigAppliedEvent{
			Source:     s.source(),
			SinkIDs:    sinkIDs(s.state.Sinks()),
			Generation: s.state.Generation(),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

		// Keep connection alive and forward events
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					// Connection failed, clean up and exit
					return
				}
			}
		}
	})
}
