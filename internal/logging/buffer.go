package logging

import (
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single log line stored in the ring buffer.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	LevelNo    int            `json:"level_no"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Text       string         `json:"text,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogCallback is called for every record that passes activation.
// Used to publish log events without creating import cycles.
type LogCallback func(entry LogEntry)

// Callbacks combines cbs into one callback invoked in order. Nil entries are skipped.
func Callbacks(cbs ...LogCallback) LogCallback {
	return func(entry LogEntry) {
		for _, cb := range cbs {
			if cb != nil {
				cb(entry)
			}
		}
	}
}

func newLogEntry(r *Record, text string) LogEntry {
	// Text keeps the formatted line minus its trailing newline
	entry := LogEntry{
		Timestamp: r.Time,
		Level:     r.Level.Name,
		LevelNo:   r.Level.No,
		Module:    r.Name,
		Message:   r.Message,
		Text:      strings.TrimSuffix(text, "\n"),
	}
	// Copy extra so the entry does not share the record's map
	if len(r.Extra) > 0 {
		entry.Attributes = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			entry.Attributes[k] = v
		}
	}
	return entry
}

// RingBuffer is a thread-safe circular buffer for log entries.
type RingBuffer struct {
	entries []LogEntry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &RingBuffer{
		entries: make([]LogEntry, size),
		size:    size,
	}
}

// Write adds a log entry to the buffer, overwriting the oldest entry if full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Overwrite the slot at head, then advance
	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.size

	if rb.count < rb.size {
		rb.count++
	}
}

// ReadAll returns all entries in chronological order.
func (rb *RingBuffer) ReadAll() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return nil
	}

	result := make([]LogEntry, rb.count)

	if rb.count < rb.size {
		// Buffer not full yet, entries start at 0
		copy(result, rb.entries[:rb.count])
	} else {
		// Buffer is full, oldest entry is at head
		firstPart := rb.entries[rb.head:]
		secondPart := rb.entries[:rb.head]
		copy(result, firstPart)
		copy(result[len(firstPart):], secondPart)
	}

	return result
}

// Tail returns at most n of the newest entries in chronological order.
func (rb *RingBuffer) Tail(n int) []LogEntry {
	all := rb.ReadAll()
	if n <= 0 || n >= len(all) {
		return all
	}
	// Keep the newest n
	return all[len(all)-n:]
}

// Count returns the number of entries in the buffer.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Cap returns the buffer capacity.
func (rb *RingBuffer) Cap() int {
	return rb.size
}

// memoryWriter is the "memory" sink target.
type memoryWriter struct {
	buf *RingBuffer
}

func (w *memoryWriter) write(msg Message) error {
	w.buf.Write(newLogEntry(msg.Record, msg.Text))
	return nil
}

func (w *memoryWriter) close() error { return nil }
