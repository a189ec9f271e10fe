package logging

import (
	"log/slog"
	"os"
	"runtime"
	"sort"
	"time"
)

var processStart = time.Now()

// Record is a single log event after patching and extra merging.
type Record struct {
	Time     time.Time      `json:"time"`
	Level    Level          `json:"level"`
	Message  string         `json:"message"`
	Name     string         `json:"name"`
	Extra    map[string]any `json:"extra"`
	File     string         `json:"file,omitempty"`
	Line     int            `json:"line,omitempty"`
	Function string         `json:"function,omitempty"`
	Elapsed  time.Duration  `json:"elapsed"`
	PID      int            `json:"process"`

	pc uintptr
}

// Message is what callable sinks receive: the formatted text plus its record.
type Message struct {
	Text   string
	Record *Record
}

// SinkFunc is a callable sink.
type SinkFunc func(Message)

// PatchFunc mutates every record before it reaches the sinks.
type PatchFunc func(*Record)

// FilterFunc decides whether a sink receives a record.
type FilterFunc func(*Record) bool

// FormatFunc renders a record to text, replacing the template engine.
type FormatFunc func(*Record) string

// ActivationRule enables or disables records from a module and its children.
type ActivationRule struct {
	Module  string `json:"module"`
	Enabled bool   `json:"enabled"`
}

func newRecord(t time.Time, level Level, msg string, pc uintptr) *Record {
	if t.IsZero() {
		t = time.Now()
	}
	r := &Record{
		Time:    t,
		Level:   level,
		Message: msg,
		Extra:   make(map[string]any),
		Elapsed: t.Sub(processStart),
		PID:     os.Getpid(),
		pc:      pc,
	}
	if pc != 0 {
		frames := runtime.CallersFrames([]uintptr{pc})
		f, _ := frames.Next()
		r.File = f.File
		r.Line = f.Line
		r.Function = f.Function
	}
	return r
}

// clone copies the record so a sink cannot leak mutations to its siblings.
func (r *Record) clone() *Record {
	c := *r
	c.Extra = make(map[string]any, len(r.Extra))
	for k, v := range r.Extra {
		c.Extra[k] = v
	}
	return &c
}

// slogRecord converts back into an slog.Record for handler sinks.
func (r *Record) slogRecord() slog.Record {
	sr := slog.NewRecord(r.Time, ToSlog(r.Level.No), r.Message, r.pc)
	if r.Name != "" {
		sr.AddAttrs(slog.String("module", r.Name))
	}
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sr.AddAttrs(slog.Any(k, r.Extra[k]))
	}
	return sr
}
