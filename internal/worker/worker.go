// Package worker implements the worker loop (§4.3): the child-role
// execution entered when ParallelizationInput.IsChild() is true. It reads
// items from its own stdin in batches, invokes the per-item action wrapped
// by the error handler, and emits one progress symbol per attempted item.
package worker

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/ricesearch/riceexec/internal/contract"
	apperrors "github.com/ricesearch/riceexec/internal/pkg/errors"
	"github.com/ricesearch/riceexec/internal/item"
)

// Config bundles everything the worker loop needs. BeforeBatch and
// AfterBatch are optional (nil means no hook).
type Config struct {
	Action         contract.Action
	ErrorHandler   contract.ErrorHandler
	Logger         contract.Logger
	ProgressSymbol rune
	BatchSize      int
	BeforeBatch    contract.BeforeBatchHook
	AfterBatch     contract.AfterBatchHook

	// Advance, if non-nil, is called once per attempted item in addition
	// to the progressSymbol byte written to stdout. The in-process
	// (non-spawning) execution path uses this to drive the coordinator's
	// own logger directly, instead of round-tripping through a pipe and a
	// demultiplexer (§4.6 step 6).
	Advance func(delta int)

	// Limiter, if non-nil, is waited on before each item's action runs,
	// throttling this worker to a caller-configured items/sec rate
	// (demo CLI's --items-per-sec).
	Limiter *rate.Limiter
}

// Run executes the worker loop to completion: reads every item on stdin,
// invokes Action for each with error-handler tolerance, and writes one
// ProgressSymbol rune to stdout per attempted item. It returns
// min(255, sum of error-handler contributions); neither
// runBeforeFirstCommand nor runAfterLastCommand run here (§4.3) - those are
// coordinator-only.
func Run(stdin io.Reader, stdout io.Writer, cfg Config) (int, error) {
	it, err := item.FromStream(stdin, cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	symbol := []byte(string(cfg.ProgressSymbol))
	return runLoop(it, cfg, func() error {
		_, werr := stdout.Write(symbol)
		if werr != nil {
			return fmt.Errorf("writing progress symbol: %w", werr)
		}
		return nil
	})
}

// RunIterator drives the same batch loop as Run, but over an already
// materialized Iterator (built by fromItem/fromCallable) instead of parsing
// a stdin stream — the in-process, non-spawning path (§4.6 step 6), where
// there is no child pipe to write a progress symbol onto and cfg.Advance
// drives the coordinator's own logger directly.
func RunIterator(it *item.Iterator, cfg Config) (int, error) {
	return runLoop(it, cfg, func() error { return nil })
}

// runLoop is the batch loop shared by Run and RunIterator: before/after
// batch hooks, tolerant per-item dispatch, and one emitTick call per
// attempted item in addition to cfg.Advance.
func runLoop(it *item.Iterator, cfg Config, emitTick func() error) (int, error) {
	total := 0

	for batch := range it.Batches() {
		var batchCtx any
		var err error
		if cfg.BeforeBatch != nil {
			batchCtx, err = cfg.BeforeBatch(batch)
			if err != nil {
				return 0, apperrors.HookError("runBeforeBatch", err)
			}
		}

		for _, i := range batch {
			if cfg.Limiter != nil {
				if err := cfg.Limiter.Wait(context.Background()); err != nil {
					return 0, err
				}
			}
			total += tolerantSingleItem(i, cfg.Action, cfg.ErrorHandler, cfg.Logger)
			if err := emitTick(); err != nil {
				return 0, err
			}
			if cfg.Advance != nil {
				cfg.Advance(1)
			}
		}

		if cfg.AfterBatch != nil {
			if err := cfg.AfterBatch(batch, batchCtx); err != nil {
				return 0, apperrors.HookError("runAfterBatch", err)
			}
		}
	}

	if total > 255 {
		total = 255
	}
	return total, nil
}

// tolerantSingleItem attempts the per-item action and, on failure, delegates
// to the error handler for a non-negative exit-code contribution. A
// negative contribution from a misbehaving handler is clamped to zero.
func tolerantSingleItem(item string, action contract.Action, handler contract.ErrorHandler, log contract.Logger) int {
	if err := action.Run(item); err != nil {
		contribution := handler.HandleError(item, err, log)
		if contribution < 0 {
			contribution = 0
		}
		return contribution
	}
	return 0
}
