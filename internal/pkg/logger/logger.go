// Package logger provides structured logging utilities.
package logger

import (
	"log/slog"
	"os"

	"github.com/ricesearch/riceexec/internal/contract"
)

// Logger wraps slog.Logger with additional context.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the specified level and format.
func New(level, format string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRun returns a logger carrying a run identifier, attached to every
// subsequent log line for this execute() invocation.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.With("run_id", runID),
	}
}

// WithChild returns a logger scoped to one child process.
func (l *Logger) WithChild(index int, pid int) *Logger {
	return &Logger{
		Logger: l.With("child_index", index, "child_pid", pid),
	}
}

// WithError returns a logger with error context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With("error", err.Error()),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New("info", "text")
}

// SlogLogger adapts *Logger to contract.Logger, the interface the
// parallelization core consumes (§6).
type SlogLogger struct {
	*Logger
}

// NewSlogLogger wraps an existing *Logger as a contract.Logger.
func NewSlogLogger(l *Logger) *SlogLogger {
	return &SlogLogger{Logger: l}
}

var (
	_ contract.Logger     = (*SlogLogger)(nil)
	_ contract.RunStamper = (*SlogLogger)(nil)
)

// WithRun returns a contract.Logger carrying a run identifier, satisfying
// contract.RunStamper.
func (s *SlogLogger) WithRun(runID string) contract.Logger {
	return &SlogLogger{Logger: s.Logger.WithRun(runID)}
}

func (s *SlogLogger) LogConfiguration(cfg contract.Configuration) {
	s.Info("configuration planned",
		"should_spawn_children", cfg.ShouldSpawnChildren,
		"number_of_processes", cfg.NumberOfProcesses,
		"segment_size", cfg.SegmentSize,
		"number_of_segments", cfg.NumberOfSegments,
		"total_items", cfg.TotalItems,
	)
}

func (s *SlogLogger) LogStart(totalItems int) {
	s.Info("run started", "total_items", totalItems)
}

func (s *SlogLogger) LogAdvance(delta int) {
	s.Debug("progress advanced", "delta", delta)
}

func (s *SlogLogger) LogFinish(itemName string) {
	s.Info("run finished", "item_name", itemName)
}

func (s *SlogLogger) LogCommandStarted(cmd []string) {
	s.Info("child command started", "cmd", cmd)
}

func (s *SlogLogger) LogCommandFinished(index int, pid int) {
	s.Info("child command finished", "child_index", index, "child_pid", pid)
}

func (s *SlogLogger) LogUnexpectedChildProcessOutput(index int, pid int, kind contract.StreamKind, chunk []byte, progressSymbol rune) {
	s.Warn("unexpected child output",
		"child_index", index,
		"child_pid", pid,
		"stream", kind.String(),
		"chunk", string(chunk),
		"progress_symbol", string(progressSymbol),
	)
}
