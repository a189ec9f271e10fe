package events

// Event type constants for kelindar/event.
const (
	TypeConfigApplied uint32 = iota + 1
	TypeConfigFailed
	TypeLogEntry
	TypeLogStats
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ConfigAppliedEvent is published after a logging document was applied.
type ConfigAppliedEvent struct {
	Source     string `json:"source" example:"/etc/logwire/logging.yaml" doc:"Document that was applied"`
	SinkIDs    []int  `json:"sink_ids" doc:"Identifiers of the sinks the document added"`
	Generation uint64 `json:"generation" example:"3" doc:"Configuration generation after the apply"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Apply timestamp"`
}

// Type returns the event type identifier for ConfigAppliedEvent.
func (e ConfigAppliedEvent) Type() uint32 { return TypeConfigApplied }

// ConfigFailedEvent is published when a document is rejected at any stage.
type ConfigFailedEvent struct {
	Source    string `json:"source" example:"/etc/logwire/logging.yaml" doc:"Document that failed"`
	Kind      string `json:"kind" example:"ResolutionError" doc:"Stage that failed"`
	Path      string `json:"path,omitempty" example:"sinks[0].target" doc:"Location of the failure in the document"`
	Error     string `json:"error" doc:"Error message"`
	Partial   bool   `json:"partial" doc:"Whether sinks added before the failure stayed active"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Failure timestamp"`
}

// Type returns the event type identifier for ConfigFailedEvent.
func (e ConfigFailedEvent) Type() uint32 { return TypeConfigFailed }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"INFO" doc:"Log level"`
	LevelNo    int            `json:"level_no" example:"20" doc:"Log severity"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// LogStatsEvent carries the running record count for one level.
type LogStatsEvent struct {
	Level     string `json:"level" example:"WARNING" doc:"Level name"`
	Count     string `json:"count" example:"17" doc:"Records emitted at this level since start"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Sample timestamp"`
}

// Type returns the event type identifier for LogStatsEvent.
func (e LogStatsEvent) Type() uint32 { return TypeLogStats }
