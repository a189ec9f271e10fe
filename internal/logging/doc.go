// Package logging is the process logging state that configuration documents
// are applied to.
//
// # Overview
//
// A [State] owns an ordered list of sinks, a level table, an optional patch
// function, extra fields merged into every record, and per-module activation
// rules. Records enter through an [slog.Handler] bridge or through
// [State.Log] for custom levels:
//
//	logger := logging.GetLogger("streams")
//	logger.Info("Stream started", "stream_id", id)
//
//	_ = logging.Default().Log(ctx, "SUCCESS", "streams", "Ready")
//
// # Levels
//
// Severities follow loguru numbering:
//
//	TRACE 5, DEBUG 10, INFO 20, SUCCESS 25, WARNING 30, ERROR 40, CRITICAL 50
//
// slog levels map onto it as no = 20 + 5*level/2, so slog.LevelDebug is 10 and
// slog.LevelWarn is 30.
//
// # Sinks
//
// Targets are "stdout", "stderr", "journal", "memory", a file path, an
// io.Writer, an slog.Handler or a callable. File sinks rotate through
// lumberjack when rotation or retention is set. Each sink has its own minimum
// level, filter and format template:
//
//	<green>{time:YYYY-MM-DD HH:mm:ss.SSS}</green> | <level>{level: <8}</level> | {message}
//
// # Reconfiguration
//
// [State.Reconfigure] stages changes in a [Tx] and swaps them in at once.
// Concurrent emitters observe either the previous or the new configuration.
//
// # Viewing Logs
//
// Journal sinks tag entries with the binary name and structured fields:
//
//	journalctl -t logwire MODULE=streams
//	journalctl -t logwire -p err
package logging
