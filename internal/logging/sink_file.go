package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const megabyte = 1 << 20

// openFile opens path eagerly. Sinks with rotation or retention go through
// lumberjack; plain sinks keep a single *os.File.
func openFile(path string, opts SinkOptions) (sinkWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if opts.Mode == "w" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	if opts.Rotation <= 0 && opts.Retention == (Retention{}) && opts.Compression == "" {
		return &fileWriter{f: f}, nil
	}

	// lumberjack reopens the file itself in append mode.
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close log file: %w", err)
	}
	return &rotatingWriter{lj: newLumberjack(path, opts)}, nil
}

func newLumberjack(path string, opts SinkOptions) *lumberjack.Logger {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxBackups: opts.Retention.Count,
		Compress:   opts.Compression != "",
		LocalTime:  true,
	}
	if opts.Rotation > 0 {
		lj.MaxSize = int((opts.Rotation + megabyte - 1) / megabyte)
	}
	if opts.Retention.MaxAge > 0 {
		day := 24 * time.Hour
		lj.MaxAge = int((opts.Retention.MaxAge + day - 1) / day)
	}
	return lj
}

type fileWriter struct {
	mu sync.Mutex
	f  *os.File
}

func (w *fileWriter) write(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.f.WriteString(withNewline(msg.Text))
	return err
}

func (w *fileWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

type rotatingWriter struct {
	lj *lumberjack.Logger
}

func (w *rotatingWriter) write(msg Message) error {
	_, err := w.lj.Write([]byte(withNewline(msg.Text)))
	return err
}

func (w *rotatingWriter) close() error {
	return w.lj.Close()
}
