// Package executor implements the executor facade (§4.6): the single entry
// point that dispatches between worker (child) role and coordinator role,
// builds the item iterator, plans the Configuration, and drives either an
// in-process worker loop or a supervisor-managed pool of children.
package executor

import (
	"io"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/ricesearch/riceexec/internal/contract"
	apperrors "github.com/ricesearch/riceexec/internal/pkg/errors"
)

// ExecutorSpec is the immutable configuration built once by a host
// application and consumed for exactly one Execute call (§3). The per-item
// action, error handler, child command factory and process launcher factory
// are the small interfaces in internal/contract; the first three also have
// a function-value adapter (ActionFunc, ErrorHandlerFunc,
// ChildCommandFactoryFunc). The lifecycle and batch hooks are the function
// types in internal/contract, and FetchItems, GetItemName and ProcessTick
// are plain function values.
type ExecutorSpec struct {
	FetchItems       func() ([]string, error)
	RunSingleCommand contract.Action
	GetItemName      func() string
	ErrorHandler     contract.ErrorHandler

	// ChildSourceStream is read by the worker loop when this process is
	// running in the child role. Unused in the coordinator role.
	ChildSourceStream io.Reader

	BatchSize      int
	SegmentSize    int
	ProgressSymbol rune

	RunBeforeFirstCommand contract.LifecycleHook
	RunAfterLastCommand   contract.LifecycleHook
	RunBeforeBatch        contract.BeforeBatchHook
	RunAfterBatch         contract.AfterBatchHook

	ChildCommandFactory contract.ChildCommandFactory
	WorkingDirectory    string

	// ExtraEnvironmentVariables overlays the parent environment. A nil map
	// means "inherit only" (§5).
	ExtraEnvironmentVariables map[string]string

	ProcessLauncherFactory contract.ProcessLauncherFactory
	ProcessTick            func()

	// ItemsPerSecond, if > 0, throttles per-item dispatch to this rate in
	// both in-process and spawn modes (demo CLI's --items-per-sec).
	ItemsPerSecond float64
}

// Builder accumulates spec fields with fluent setters and validates them on
// Build, per §4.7.
type Builder struct {
	spec ExecutorSpec
}

// NewBuilder returns a Builder seeded with defaults matching §4.2's
// DefaultProcessCount companions: batchSize and segmentSize both default to
// 1 (the smallest valid value), progressSymbol defaults to '.'.
func NewBuilder() *Builder {
	return &Builder{spec: ExecutorSpec{
		BatchSize:      1,
		SegmentSize:    1,
		ProgressSymbol: '.',
	}}
}

func (b *Builder) FetchItems(f func() ([]string, error)) *Builder {
	b.spec.FetchItems = f
	return b
}

func (b *Builder) RunSingleCommand(a contract.Action) *Builder {
	b.spec.RunSingleCommand = a
	return b
}

func (b *Builder) GetItemName(f func() string) *Builder {
	b.spec.GetItemName = f
	return b
}

func (b *Builder) ErrorHandler(h contract.ErrorHandler) *Builder {
	b.spec.ErrorHandler = h
	return b
}

func (b *Builder) ChildSourceStream(r io.Reader) *Builder {
	b.spec.ChildSourceStream = r
	return b
}

func (b *Builder) BatchSize(n int) *Builder {
	b.spec.BatchSize = n
	return b
}

func (b *Builder) SegmentSize(n int) *Builder {
	b.spec.SegmentSize = n
	return b
}

func (b *Builder) ProgressSymbol(r rune) *Builder {
	b.spec.ProgressSymbol = r
	return b
}

func (b *Builder) RunBeforeFirstCommand(h contract.LifecycleHook) *Builder {
	b.spec.RunBeforeFirstCommand = h
	return b
}

func (b *Builder) RunAfterLastCommand(h contract.LifecycleHook) *Builder {
	b.spec.RunAfterLastCommand = h
	return b
}

func (b *Builder) RunBeforeBatch(h contract.BeforeBatchHook) *Builder {
	b.spec.RunBeforeBatch = h
	return b
}

func (b *Builder) RunAfterBatch(h contract.AfterBatchHook) *Builder {
	b.spec.RunAfterBatch = h
	return b
}

func (b *Builder) ChildCommandFactory(f contract.ChildCommandFactory) *Builder {
	b.spec.ChildCommandFactory = f
	return b
}

func (b *Builder) WorkingDirectory(dir string) *Builder {
	b.spec.WorkingDirectory = dir
	return b
}

func (b *Builder) ExtraEnvironmentVariables(env map[string]string) *Builder {
	b.spec.ExtraEnvironmentVariables = env
	return b
}

func (b *Builder) ProcessLauncherFactory(f contract.ProcessLauncherFactory) *Builder {
	b.spec.ProcessLauncherFactory = f
	return b
}

func (b *Builder) ProcessTick(f func()) *Builder {
	b.spec.ProcessTick = f
	return b
}

func (b *Builder) ItemsPerSecond(n float64) *Builder {
	b.spec.ItemsPerSecond = n
	return b
}

// Build validates the accumulated spec per §4.7 and returns it, or a
// descriptive invariant-violation error.
func (b *Builder) Build() (ExecutorSpec, error) {
	spec := b.spec

	if spec.BatchSize < 1 {
		return ExecutorSpec{}, apperrors.InvariantError("batchSize must be >= 1")
	}
	if spec.SegmentSize < 1 {
		return ExecutorSpec{}, apperrors.InvariantError("segmentSize must be >= 1")
	}
	if utf8.RuneCountInString(string(spec.ProgressSymbol)) != 1 {
		return ExecutorSpec{}, apperrors.InvariantError("progressSymbol must be exactly one code point")
	}
	if spec.RunSingleCommand == nil {
		return ExecutorSpec{}, apperrors.InvariantError("runSingleCommand is required")
	}
	if spec.ErrorHandler == nil {
		return ExecutorSpec{}, apperrors.InvariantError("errorHandler is required")
	}
	if spec.FetchItems == nil && spec.ChildSourceStream == nil {
		return ExecutorSpec{}, apperrors.InvariantError("at least one of fetchItems or childSourceStream is required")
	}

	return spec, nil
}

// limiter returns the rate.Limiter this spec's ItemsPerSecond implies, or
// nil when throttling is disabled.
func (s ExecutorSpec) limiter() *rate.Limiter {
	if s.ItemsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(s.ItemsPerSecond), 1)
}
