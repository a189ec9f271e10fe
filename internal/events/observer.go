package events

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/smazurov/logwire/internal/logconfig"
	"github.com/smazurov/logwire/internal/logging"
)

// Observer publishes load outcomes on the bus.
type Observer struct {
	bus *Bus
}

// NewObserver returns a logconfig.Observer backed by bus.
func NewObserver(bus *Bus) *Observer {
	return &Observer{bus: bus}
}

// Applied implements logconfig.Observer.
func (o *Observer) Applied(source string, res *logconfig.Result) {
	o.bus.Publish(ConfigAppliedEvent{
		Source:     source,
		SinkIDs:    res.SinkIDs,
		Generation: res.Generation,
		Timestamp:  res.Applied.UTC().Format(time.RFC3339),
	})
}

// Failed implements logconfig.Observer.
func (o *Observer) Failed(source string, err error) {
	ev := ConfigFailedEvent{
		Source:    source,
		Error:     err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	var cfgErr *logconfig.Error
	if errors.As(err, &cfgErr) {
		ev.Kind = string(cfgErr.Kind)
		ev.Path = cfgErr.Path.String()
		ev.Partial = cfgErr.Partial
	}
	o.bus.Publish(ev)
}

// LogForwarder returns a callback that publishes every log entry as a
// LogEntryEvent with a monotonic sequence number.
func LogForwarder(bus *Bus) logging.LogCallback {
	var seq atomic.Uint64
	return func(entry logging.LogEntry) {
		bus.Publish(LogEntryEvent{
			Seq:        seq.Add(1),
			Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339Nano),
			Level:      entry.Level,
			LevelNo:    entry.LevelNo,
			Module:     entry.Module,
			Message:    entry.Message,
			Attributes: entry.Attributes,
		})
	}
}
