package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ricesearch/riceexec/internal/contract"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug text", "debug", "text"},
		{"info json", "info", "json"},
		{"warn text", "warn", "text"},
		{"error json", "error", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level, tt.format)
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			if logger.Logger == nil {
				t.Fatal("New() returned logger with nil slog.Logger")
			}
		})
	}
}

func TestLogger_WithRun(t *testing.T) {
	logger := New("info", "text")
	l := logger.WithRun("run-123")
	if l == nil {
		t.Fatal("WithRun() returned nil")
	}
}

func TestLogger_WithChild(t *testing.T) {
	logger := New("info", "text")
	l := logger.WithChild(0, 4242)
	if l == nil {
		t.Fatal("WithChild() returned nil")
	}
}

func TestLogger_WithError(t *testing.T) {
	logger := New("info", "text")

	l := logger.WithError(errors.New("boom"))
	if l == nil {
		t.Fatal("WithError() returned nil")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // default
		{"", slog.LevelInfo},        // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_OutputFormat(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		handler := slog.NewJSONHandler(&buf, nil)
		logger := &Logger{Logger: slog.New(handler)}

		logger.Info("test message")

		output := buf.String()
		if !strings.Contains(output, `"msg":"test message"`) {
			t.Errorf("JSON output should contain msg field, got: %s", output)
		}
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		handler := slog.NewTextHandler(&buf, nil)
		logger := &Logger{Logger: slog.New(handler)}

		logger.Info("test message")

		output := buf.String()
		if !strings.Contains(output, "test message") {
			t.Errorf("Text output should contain message, got: %s", output)
		}
	})
}

func TestSlogLogger_ImplementsContract(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, nil)
	sl := NewSlogLogger(&Logger{Logger: slog.New(handler)})

	sl.LogConfiguration(contract.Configuration{
		ShouldSpawnChildren: true,
		NumberOfProcesses:   2,
		SegmentSize:         5,
		NumberOfSegments:    3,
		TotalItems:          11,
	})
	sl.LogStart(11)
	sl.LogAdvance(1)
	sl.LogCommandStarted([]string{"riceexec-demo", "--child"})
	sl.LogCommandFinished(0, 1234)
	sl.LogUnexpectedChildProcessOutput(0, 1234, contract.StreamStdout, []byte("x.y"), '.')
	sl.LogFinish("items")

	output := buf.String()
	for _, want := range []string{"configuration planned", "run started", "child command started", "child command finished", "unexpected child output", "run finished"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q, got: %s", want, output)
		}
	}
}
