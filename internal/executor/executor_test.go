package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/ricesearch/riceexec/internal/contract"
)

type recordingLogger struct {
	mu            sync.Mutex
	configs       []contract.Configuration
	starts        []int
	advances      int
	finishes      []string
	commandsStart int
	commandsEnd   []int
}

func (l *recordingLogger) LogConfiguration(cfg contract.Configuration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs = append(l.configs, cfg)
}
func (l *recordingLogger) LogStart(totalItems int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, totalItems)
}
func (l *recordingLogger) LogAdvance(delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advances += delta
}
func (l *recordingLogger) LogFinish(itemName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finishes = append(l.finishes, itemName)
}
func (l *recordingLogger) LogCommandStarted(cmd []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commandsStart++
}
func (l *recordingLogger) LogCommandFinished(index, pid int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commandsEnd = append(l.commandsEnd, index)
}
func (l *recordingLogger) LogUnexpectedChildProcessOutput(int, int, contract.StreamKind, []byte, rune) {
}

func devNullPair(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	w, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func fiveItems() ([]string, error) {
	return []string{"a", "b", "c", "d", "e"}, nil
}

func TestExecute_InProcessBatching(t *testing.T) {
	var batchCount int
	var mu sync.Mutex

	spec, err := NewBuilder().
		FetchItems(fiveItems).
		RunSingleCommand(contract.ActionFunc(func(item string) error { return nil })).
		ErrorHandler(contract.ErrorHandlerFunc(func(item string, failure error, log contract.Logger) int { return 1 })).
		BatchSize(2).
		SegmentSize(2).
		ProgressSymbol('.').
		RunBeforeBatch(func(batch []string) (any, error) {
			mu.Lock()
			batchCount++
			mu.Unlock()
			return nil, nil
		}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	log := &recordingLogger{}
	stdin, stdout := devNullPair(t)
	input := Input{InMainProcess: true}

	code, err := Execute(context.Background(), spec, input, stdin, stdout, log)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}

	mu.Lock()
	defer mu.Unlock()
	if batchCount != 3 {
		t.Errorf("batch hook invoked %d times, want 3 (batches [a,b] [c,d] [e])", batchCount)
	}
	if log.advances != 5 {
		t.Errorf("advances = %d, want 5", log.advances)
	}
	if len(log.starts) != 1 || log.starts[0] != 5 {
		t.Errorf("LogStart calls = %v, want [5]", log.starts)
	}
}

func TestExecute_FailingItemCapturedByErrorHandler(t *testing.T) {
	spec, err := NewBuilder().
		FetchItems(fiveItems).
		RunSingleCommand(contract.ActionFunc(func(item string) error {
			if item == "c" {
				return errors.New("boom")
			}
			return nil
		})).
		ErrorHandler(contract.ErrorHandlerFunc(func(item string, failure error, log contract.Logger) int { return 1 })).
		BatchSize(2).
		SegmentSize(2).
		ProgressSymbol('.').
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	log := &recordingLogger{}
	stdin, stdout := devNullPair(t)
	input := Input{InMainProcess: true}

	code, err := Execute(context.Background(), spec, input, stdin, stdout, log)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestExecute_ZeroItems(t *testing.T) {
	var beforeCalled, afterCalled bool

	spec, err := NewBuilder().
		FetchItems(func() ([]string, error) { return nil, nil }).
		RunSingleCommand(contract.ActionFunc(func(item string) error { return nil })).
		ErrorHandler(contract.ErrorHandlerFunc(func(item string, failure error, log contract.Logger) int { return 1 })).
		BatchSize(2).
		SegmentSize(2).
		ProgressSymbol('.').
		RunBeforeFirstCommand(func() error { beforeCalled = true; return nil }).
		RunAfterLastCommand(func() error { afterCalled = true; return nil }).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	log := &recordingLogger{}
	stdin, stdout := devNullPair(t)
	input := Input{InMainProcess: true}

	code, err := Execute(context.Background(), spec, input, stdin, stdout, log)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !beforeCalled || !afterCalled {
		t.Errorf("beforeCalled=%v afterCalled=%v, want both true", beforeCalled, afterCalled)
	}
}

// --- spawn-mode fakes, mirroring internal/supervisor's test doubles ---

type fakeHandle struct {
	mu       sync.Mutex
	index    int
	received []string
	finished bool
}

func (h *fakeHandle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.finished
}
func (h *fakeHandle) PID() *int { pid := 1000 + h.index; return &pid }
func (h *fakeHandle) Stdin() contract.WriteCloser { return h }
func (h *fakeHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := strings.TrimRight(string(p), "\n")
	if s != "" {
		h.received = append(h.received, strings.Split(s, "\n")...)
	}
	return len(p), nil
}
func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.finished = true
	h.mu.Unlock()
	return nil
}
func (h *fakeHandle) Wait() (int, error) { return 0, nil }
func (h *fakeHandle) Kill() error        { return h.Close() }

type fakeFactory struct {
	mu      sync.Mutex
	handles []*fakeHandle
}

func (f *fakeFactory) Create(command []string, cwd string, env []string, processLimit, segmentSize int, log contract.Logger, onOutput contract.OutputCallback, tick func()) (contract.ProcessLauncher, error) {
	return f, nil
}
func (f *fakeFactory) Launch(ctx context.Context, index int) (contract.ProcessHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHandle{index: index}
	f.handles = append(f.handles, h)
	return h, nil
}

type fakeChildCommandFactory struct{}

func (fakeChildCommandFactory) CreateChildCommand(input contract.ParallelizationInput) []string {
	return []string{"riceexec-demo", "--child"}
}

func TestExecute_SpawnMode(t *testing.T) {
	factory := &fakeFactory{}

	spec, err := NewBuilder().
		FetchItems(fiveItems).
		RunSingleCommand(contract.ActionFunc(func(item string) error { return nil })).
		ErrorHandler(contract.ErrorHandlerFunc(func(item string, failure error, log contract.Logger) int { return 1 })).
		BatchSize(2).
		SegmentSize(2).
		ProgressSymbol('.').
		ChildCommandFactory(fakeChildCommandFactory{}).
		ProcessLauncherFactory(factory).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	two := 2
	log := &recordingLogger{}
	stdin, stdout := devNullPair(t)
	input := Input{InMainProcess: false, ProcessesOverride: two, HasProcessesOverride: true}

	code, err := Execute(context.Background(), spec, input, stdin, stdout, log)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}

	if len(factory.handles) != 3 {
		t.Fatalf("spawned %d children, want 3", len(factory.handles))
	}
	seen := map[string]bool{}
	for _, h := range factory.handles {
		if len(h.received) > 2 {
			t.Errorf("child %d received %d items, want <= 2", h.index, len(h.received))
		}
		for _, item := range h.received {
			seen[item] = true
		}
	}
	if len(seen) != 5 {
		t.Errorf("distinct items delivered = %d, want 5", len(seen))
	}
}

func TestExecute_SingleItemShortCircuit(t *testing.T) {
	var runCount int
	spec, err := NewBuilder().
		RunSingleCommand(contract.ActionFunc(func(item string) error {
			runCount++
			if item != "only-item" {
				return fmt.Errorf("unexpected item %q", item)
			}
			return nil
		})).
		ErrorHandler(contract.ErrorHandlerFunc(func(item string, failure error, log contract.Logger) int { return 1 })).
		BatchSize(1).
		SegmentSize(1).
		ProgressSymbol('.').
		ChildSourceStream(strings.NewReader("")).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	log := &recordingLogger{}
	stdin, stdout := devNullPair(t)
	input := Input{InMainProcess: true, SingleItem: "only-item", HasSingleItem: true}

	code, err := Execute(context.Background(), spec, input, stdin, stdout, log)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if runCount != 1 {
		t.Errorf("action invoked %d times, want 1", runCount)
	}
}

func TestBuilder_ValidationFailsFast(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Builder)
	}{
		{"batchSize zero", func(b *Builder) { b.BatchSize(0) }},
		{"segmentSize zero", func(b *Builder) { b.SegmentSize(0) }},
		{"missing action", func(b *Builder) { b.RunSingleCommand(nil) }},
		{"missing error handler", func(b *Builder) { b.ErrorHandler(nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder().
				FetchItems(fiveItems).
				RunSingleCommand(contract.ActionFunc(func(string) error { return nil })).
				ErrorHandler(contract.ErrorHandlerFunc(func(string, error, contract.Logger) int { return 0 }))
			tt.mod(b)
			if _, err := b.Build(); err == nil {
				t.Error("Build() error = nil, want invariant violation")
			}
		})
	}
}

func TestBuilder_MultiByteProgressSymbolAccepted(t *testing.T) {
	// ProgressSymbol takes a rune, so the "exactly one code point" invariant
	// (§4.7) is enforced by the type system for any caller going through
	// this API; this only confirms a multi-byte-encoded symbol like '✓'
	// still validates as exactly one code point.
	_, err := NewBuilder().
		FetchItems(fiveItems).
		RunSingleCommand(contract.ActionFunc(func(string) error { return nil })).
		ErrorHandler(contract.ErrorHandlerFunc(func(string, error, contract.Logger) int { return 0 })).
		ProgressSymbol('✓').
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v, want nil for a valid single-rune symbol", err)
	}
}
