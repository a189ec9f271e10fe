package models

import (
	"github.com/smazurov/logwire/internal/logging"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Logging state models
type LoggingStateData struct {
	Generation uint64                   `json:"generation" example:"3" doc:"Number of committed reconfigurations"`
	Source     string                   `json:"source,omitempty" example:"/etc/logwire/logging.yaml" doc:"Document applied by the last reload"`
	Sinks      []logging.SinkInfo       `json:"sinks" doc:"Active sinks in the order they were added"`
	Levels     []logging.Level          `json:"levels" doc:"Known levels ordered by severity"`
	Extra      map[string]any           `json:"extra,omitempty" doc:"Extra fields bound to every record"`
	Activation []logging.ActivationRule `json:"activation,omitempty" doc:"Module activation rules"`
	Patch      bool                     `json:"patch" example:"false" doc:"Whether a record patch function is installed"`
}

type LoggingStateResponse struct {
	Body LoggingStateData
}

// Reload models
type ReloadRequestData struct {
	Document string `json:"document,omitempty" doc:"Inline document to apply instead of the configured file"`
	Format   string `json:"format,omitempty" example:"yaml" doc:"Document format, detected when empty"`
}

type ReloadRequest struct {
	Body *ReloadRequestData `required:"false"`
}

type ReloadData struct {
	Source     string `json:"source" example:"/etc/logwire/logging.yaml" doc:"Document that was applied"`
	SinkIDs    []int  `json:"sink_ids" doc:"Identifiers of the sinks the document added"`
	Generation uint64 `json:"generation" example:"4" doc:"Configuration generation after the apply"`
}

type ReloadResponse struct {
	Body ReloadData
}

// Log buffer models
type LogsRequest struct {
	Sink  string `query:"sink" example:"console" doc:"Name of the memory sink to read, first memory sink when empty"`
	Limit int    `query:"limit" minimum:"0" maximum:"10000" example:"100" doc:"Return at most this many of the newest entries, all when zero"`
}

type LogsData struct {
	Entries  []logging.LogEntry `json:"entries" doc:"Buffered entries in chronological order"`
	Count    int                `json:"count" example:"42" doc:"Number of returned entries"`
	Capacity int                `json:"capacity" example:"1000" doc:"Ring buffer capacity"`
}

type LogsResponse struct {
	Body LogsData
}
