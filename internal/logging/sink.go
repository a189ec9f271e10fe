package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Reserved string targets.
const (
	TargetStdout  = "stdout"
	TargetStderr  = "stderr"
	TargetJournal = "journal"
	TargetMemory  = "memory"
)

const (
	defaultBufferSize = 1000
	defaultQueueSize  = 1024
)

// Retention bounds how many rotated files are kept and for how long.
type Retention struct {
	Count  int           `json:"count,omitempty"`
	MaxAge time.Duration `json:"max_age,omitempty"`
}

// SinkOptions describes one sink. Target is a reserved name, a file path,
// an io.Writer, an slog.Handler, a SinkFunc, func(Message) or func(*Record).
type SinkOptions struct {
	Name        string
	Target      any
	Level       Level
	Format      string
	FormatFunc  FormatFunc
	Filter      FilterFunc
	Colorize    bool
	Serialize   bool
	Rotation    int64
	Retention   Retention
	Compression string
	Mode        string
	Enqueue     bool
	BufferSize  int
}

// SinkInfo is the read-only view of an active sink.
type SinkInfo struct {
	ID        int    `json:"id"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind"`
	Target    string `json:"target"`
	Level     string `json:"level"`
	LevelNo   int    `json:"level_no"`
	Format    string `json:"format,omitempty"`
	Colorize  bool   `json:"colorize"`
	Serialize bool   `json:"serialize"`
	Enqueue   bool   `json:"enqueue"`
}

// sinkWriter is where formatted messages end up.
type sinkWriter interface {
	write(msg Message) error
	close() error
}

type sinkEntry struct {
	info       SinkInfo
	level      Level
	filter     FilterFunc
	template   *Template
	formatFunc FormatFunc
	colorize   bool
	serialize  bool
	out        sinkWriter
	memory     *RingBuffer
}

func (e *sinkEntry) accepts(r *Record) bool {
	if r.Level.No < e.level.No {
		return false
	}
	return e.filter == nil || e.filter(r)
}

func (e *sinkEntry) render(r *Record) string {
	var text string
	if e.formatFunc != nil {
		text = e.formatFunc(r)
	} else {
		text = e.template.Render(r, e.colorize)
	}
	if !e.serialize {
		return text
	}
	data, err := json.Marshal(struct {
		Text   string  `json:"text"`
		Record *Record `json:"record"`
	}{Text: text, Record: r})
	if err != nil {
		return text
	}
	return string(data)
}

// newSinkEntry builds the writer for opts. File and journal targets are
// opened here so failures surface at add time.
func newSinkEntry(opts SinkOptions) (*sinkEntry, error) {
	e := &sinkEntry{
		level:      opts.Level,
		filter:     opts.Filter,
		formatFunc: opts.FormatFunc,
		colorize:   opts.Colorize,
		serialize:  opts.Serialize,
	}
	if e.level.Name == "" && e.level.No == 0 {
		e.level = LevelInfo
	}

	format := opts.Format
	if format == "" && opts.Target == TargetJournal {
		format = "{message}"
	}
	if format == "" {
		format = DefaultFormat
	}
	if opts.FormatFunc == nil {
		tmpl, err := ParseTemplate(format)
		if err != nil {
			return nil, fmt.Errorf("invalid format: %w", err)
		}
		e.template = tmpl
	}

	out, kind, desc, err := openTarget(opts, e)
	if err != nil {
		return nil, err
	}
	if opts.Enqueue {
		out = newAsyncWriter(out, defaultQueueSize)
	}
	e.out = out

	e.info = SinkInfo{
		Name:      opts.Name,
		Kind:      kind,
		Target:    desc,
		Level:     e.level.Name,
		LevelNo:   e.level.No,
		Colorize:  opts.Colorize,
		Serialize: opts.Serialize,
		Enqueue:   opts.Enqueue,
	}
	if e.template != nil {
		e.info.Format = e.template.String()
	}
	return e, nil
}

func openTarget(opts SinkOptions, e *sinkEntry) (sinkWriter, string, string, error) {
	switch t := opts.Target.(type) {
	case nil:
		return nil, "", "", fmt.Errorf("sink target is required")
	case string:
		switch t {
		case TargetStdout:
			return &streamWriter{w: os.Stdout}, "stream", t, nil
		case TargetStderr:
			return &streamWriter{w: os.Stderr}, "stream", t, nil
		case TargetJournal:
			w, err := newJournalWriter()
			if err != nil {
				return nil, "", "", err
			}
			return w, "journal", t, nil
		case TargetMemory:
			size := opts.BufferSize
			if size <= 0 {
				size = defaultBufferSize
			}
			e.memory = NewRingBuffer(size)
			return &memoryWriter{buf: e.memory}, "memory", t, nil
		case "":
			return nil, "", "", fmt.Errorf("sink target must not be empty")
		}
		w, err := openFile(t, opts)
		if err != nil {
			return nil, "", "", err
		}
		return w, "file", t, nil
	case SinkFunc:
		return funcWriter(t), "callable", fmt.Sprintf("%T", t), nil
	case func(Message):
		return funcWriter(t), "callable", fmt.Sprintf("%T", t), nil
	case func(*Record):
		return funcWriter(func(m Message) { t(m.Record) }), "callable", fmt.Sprintf("%T", t), nil
	case slog.Handler:
		return &handlerWriter{h: t}, "handler", fmt.Sprintf("%T", t), nil
	case io.Writer:
		return &streamWriter{w: t}, "stream", fmt.Sprintf("%T", t), nil
	default:
		return nil, "", "", fmt.Errorf("unsupported sink target of type %T", opts.Target)
	}
}

func withNewline(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

// streamWriter writes to a stream it does not own; close leaves it open.
type streamWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *streamWriter) write(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, withNewline(msg.Text))
	return err
}

func (s *streamWriter) close() error { return nil }

type funcWriter func(Message)

func (f funcWriter) write(msg Message) error {
	f(msg)
	return nil
}

func (f funcWriter) close() error { return nil }

type handlerWriter struct {
	h slog.Handler
}

func (w *handlerWriter) write(msg Message) error {
	sr := msg.Record.slogRecord()
	ctx := context.Background()
	if !w.h.Enabled(ctx, sr.Level) {
		return nil
	}
	return w.h.Handle(ctx, sr)
}

func (w *handlerWriter) close() error { return nil }

// asyncWriter hands messages to a goroutine. close drains the queue.
type asyncWriter struct {
	inner sinkWriter
	queue chan Message
	done  chan struct{}
}

func newAsyncWriter(inner sinkWriter, size int) *asyncWriter {
	a := &asyncWriter{
		inner: inner,
		queue: make(chan Message, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *asyncWriter) run() {
	defer close(a.done)
	for msg := range a.queue {
		if err := a.inner.write(msg); err != nil {
			fmt.Fprintf(os.Stderr, "logging: enqueued sink write failed: %v\n", err)
		}
	}
}

func (a *asyncWriter) write(msg Message) error {
	a.queue <- msg
	return nil
}

func (a *asyncWriter) close() error {
	close(a.queue)
	<-a.done
	return a.inner.close()
}
