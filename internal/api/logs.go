package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/logwire/internal/api/models"
	"github.com/smazurov/logwire/internal/events"
	"github.com/smazurov/logwire/internal/logging"
)

// registerLogRoutes registers the log buffer and log streaming endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Buffered Logs",
		Description: "Read the entries held by a memory sink",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		buffer := s.state.Buffer(input.Sink)
		if buffer == nil {
			if input.Sink != "" {
				return nil, huma.Error404NotFound(fmt.Sprintf("No memory sink named %q", input.Sink))
			}
			return nil, huma.Error404NotFound("No memory sink is configured")
		}
		entries := buffer.Tail(input.Limit)
		if entries == nil {
			entries = []logging.LogEntry{}
		}
		return &models.LogsResponse{
			Body: models.LogsData{
				Entries:  entries,
				Count:    len(entries),
				Capacity: buffer.Cap(),
			},
		}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends the first memory sink's entries first, then streams new records.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		if buffer := s.state.Buffer(""); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				event := events.LogEntryEvent{
					Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339Nano),
					Level:      entry.Level,
					LevelNo:    entry.LevelNo,
					Module:     entry.Module,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
