package executor

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/ricesearch/riceexec/internal/contract"
	"github.com/ricesearch/riceexec/internal/item"
	"github.com/ricesearch/riceexec/internal/plan"
	"github.com/ricesearch/riceexec/internal/supervisor"
	"github.com/ricesearch/riceexec/internal/worker"
)

// Execute is the executor facade (§4.6): it dispatches between the worker
// (child) role and the coordinator role, and returns an exit code in
// [0, 255]. input carries the per-invocation flags a host's CLI parsed;
// stdin/stdout are the process's real standard streams, used for progress
// symbol I/O in the worker role.
func Execute(ctx context.Context, spec ExecutorSpec, input contract.ParallelizationInput, stdin *os.File, stdout *os.File, log contract.Logger) (int, error) {
	runID := uuid.NewString()
	if stamper, ok := log.(contract.RunStamper); ok {
		log = stamper.WithRun(runID)
	}

	if input.IsChild() {
		return runChild(spec, input, stdin, stdout, log)
	}
	return runCoordinator(ctx, spec, input, log)
}

func runChild(spec ExecutorSpec, input contract.ParallelizationInput, stdin, stdout *os.File, log contract.Logger) (int, error) {
	source := spec.ChildSourceStream
	if source == nil {
		source = stdin
	}
	batchSize := spec.BatchSize
	if n, ok := input.BatchSize(); ok {
		batchSize = n
	}
	cfg := worker.Config{
		Action:         spec.RunSingleCommand,
		ErrorHandler:   spec.ErrorHandler,
		Logger:         log,
		ProgressSymbol: spec.ProgressSymbol,
		BatchSize:      batchSize,
		BeforeBatch:    spec.RunBeforeBatch,
		AfterBatch:     spec.RunAfterBatch,
		Limiter:        spec.limiter(),
	}
	return worker.Run(source, stdout, cfg)
}

func runCoordinator(ctx context.Context, spec ExecutorSpec, input contract.ParallelizationInput, log contract.Logger) (int, error) {
	if spec.RunBeforeFirstCommand != nil {
		if err := spec.RunBeforeFirstCommand(); err != nil {
			return 0, err
		}
	}

	batchSize := spec.BatchSize
	if n, ok := input.BatchSize(); ok {
		batchSize = n
	}
	segmentSize := spec.SegmentSize
	if n, ok := input.SegmentSize(); ok {
		segmentSize = n
	}

	it, err := buildIterator(spec, input, batchSize)
	if err != nil {
		return 0, err
	}

	var requestedProcesses *int
	if n, ok := input.NumberOfProcesses(); ok {
		requestedProcesses = &n
	}

	cfg := plan.Plan(plan.Inputs{
		ShouldSpawnChildren: !input.ShouldBeProcessedInMainProcess(),
		TotalItems:          it.TotalItems(),
		RequestedProcesses:  requestedProcesses,
		DesiredSegmentSize:  segmentSize,
		BatchSize:           batchSize,
	})

	log.LogConfiguration(cfg)
	log.LogStart(cfg.TotalItems)

	var exitCode int
	if cfg.ShouldSpawnChildren {
		exitCode, err = runSpawned(ctx, spec, input, cfg, log, it)
	} else {
		exitCode, err = worker.RunIterator(it, worker.Config{
			Action:         spec.RunSingleCommand,
			ErrorHandler:   spec.ErrorHandler,
			Logger:         log,
			ProgressSymbol: spec.ProgressSymbol,
			BatchSize:      batchSize,
			BeforeBatch:    spec.RunBeforeBatch,
			AfterBatch:     spec.RunAfterBatch,
			Advance:        log.LogAdvance,
			Limiter:        spec.limiter(),
		})
	}
	if err != nil {
		return 0, err
	}

	itemName := ""
	if spec.GetItemName != nil {
		itemName = spec.GetItemName()
	}
	log.LogFinish(itemName)

	if spec.RunAfterLastCommand != nil {
		if err := spec.RunAfterLastCommand(); err != nil {
			return 0, err
		}
	}

	return exitCode, nil
}

func buildIterator(spec ExecutorSpec, input contract.ParallelizationInput, batchSize int) (*item.Iterator, error) {
	if single, ok := input.Item(); ok {
		return item.FromItem(single)
	}
	if spec.FetchItems == nil {
		return nil, fmt.Errorf("executor: fetchItems is required when no single item is supplied")
	}
	return item.FromCallable(spec.FetchItems, batchSize)
}

// runSpawned builds the child command line and environment, spawns the
// supervisor's pool, and returns 0 on normal completion — per-child exit
// codes are not aggregated into the coordinator's own (§4.6 step 6, §6).
func runSpawned(ctx context.Context, spec ExecutorSpec, input contract.ParallelizationInput, cfg contract.Configuration, log contract.Logger, it *item.Iterator) (int, error) {
	command := spec.ChildCommandFactory.CreateChildCommand(input)
	env := mergeEnv(spec.ExtraEnvironmentVariables)

	factory := spec.ProcessLauncherFactory
	if factory == nil {
		factory = supervisor.NewExecLauncherFactory()
	}

	sup := supervisor.New(factory, command, spec.WorkingDirectory, env, cfg.NumberOfProcesses, cfg.SegmentSize, log, spec.ProgressSymbol, spec.ProcessTick)
	sup = sup.WithRateLimit(spec.limiter())

	if err := sup.Run(ctx, it.Items()); err != nil {
		return 0, err
	}
	return 0, nil
}

// mergeEnv overlays extra on top of the parent's own environment. A nil
// extra means "inherit only" (§5).
func mergeEnv(extra map[string]string) []string {
	env := os.Environ()
	if extra == nil {
		return env
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
