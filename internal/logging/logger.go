package logging

import (
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	defaultState  *State
	defaultOnce   sync.Once
	moduleLoggers = make(map[string]*slog.Logger)
	mutex         sync.RWMutex
)

// Default returns the process-wide state. Until a configuration is applied it
// holds one stdout sink at INFO, colorized when stdout is a terminal.
func Default() *State {
	defaultOnce.Do(func() {
		defaultState = NewState()
		if isStdoutAvailable() {
			_, _ = defaultState.AddSink(SinkOptions{
				Target:   TargetStdout,
				Level:    LevelInfo,
				Format:   DefaultFormat,
				Colorize: StdoutIsTerminal(),
			})
		}
	})
	return defaultState
}

// GetLogger returns a logger for the specified module, creating it if needed.
// Loggers follow reconfiguration of the default state.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	logger := Default().Logger(module)
	moduleLoggers[module] = logger
	return logger
}

// InstallDefault routes slog.Default through the default state.
func InstallDefault() {
	slog.SetDefault(slog.New(Default().Handler()))
}

// StdoutIsTerminal reports whether stdout is an interactive terminal.
func StdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	// Available if terminal, pipe, socket, or regular file (not /dev/null which is ModeDevice)
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}
