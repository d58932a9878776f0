// Command riceexec-demo exercises the parallelization engine end to end: it
// runs a shell command template once per item, either in-process or spread
// across a bounded pool of re-exec'd child processes.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/ricesearch/riceexec/internal/contract"
	"github.com/ricesearch/riceexec/internal/executor"
	"github.com/ricesearch/riceexec/internal/metrics"
	"github.com/ricesearch/riceexec/internal/pkg/config"
	"github.com/ricesearch/riceexec/internal/pkg/logger"
	"github.com/ricesearch/riceexec/internal/pkg/retry"
	"github.com/ricesearch/riceexec/internal/supervisor"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "riceexec-demo",
		Short: "Run a shell command over a stream of items, in-process or via a pool of children",
		Long: `riceexec-demo runs a command template once per item from a file or a
single item, either directly in this process or by re-executing itself as a
bounded pool of child processes, one per segment of items.

Examples:
  riceexec-demo run --command "echo {}" --items-file items.txt
  riceexec-demo run --command "echo {}" --items-file items.txt.gz --processes 4 --segment-size 100
  riceexec-demo run --command "echo {}" --single-item hello --in-process`,
		SilenceUsage: true,
	}

	root.AddCommand(versionCmd(), runCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("riceexec-demo %s\n  commit: %s\n  built:  %s\n", version, commit, date)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured command over the configured items",
		RunE:  runRun,
	}

	flags := cmd.Flags()
	flags.Bool("child", false, "internal: this invocation is a spawned child (added automatically)")
	flags.String("command", "", "shell command template; {} is replaced with the item")
	flags.String("items-file", "", "newline-delimited item file (.gz supported)")
	flags.String("single-item", "", "run the command for exactly one item, skipping fetchItems")
	flags.Bool("in-process", false, "run every item in this process instead of spawning children")
	flags.Int("batch-size", 10, "items per before/after-batch hook invocation")
	flags.Int("segment-size", 50, "items per spawned child")
	flags.Int("processes", 0, "number of concurrent children (0 lets the planner choose)")
	flags.String("progress-symbol", ".", "single character written once per processed item")
	flags.Float64("items-per-sec", 0, "throttle item dispatch to this rate (0 disables)")
	flags.String("workdir", "", "working directory for the command (empty inherits the caller's)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (empty disables)")
	flags.String("config", "", "optional YAML config file overlaying defaults and environment")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	child, _ := flags.GetBool("child")
	commandTemplate, _ := flags.GetString("command")
	itemsFile, _ := flags.GetString("items-file")
	singleItem, _ := flags.GetString("single-item")
	inProcess, _ := flags.GetBool("in-process")
	batchSize, _ := flags.GetInt("batch-size")
	segmentSize, _ := flags.GetInt("segment-size")
	processes, _ := flags.GetInt("processes")
	progressSymbolStr, _ := flags.GetString("progress-symbol")
	itemsPerSec, _ := flags.GetFloat64("items-per-sec")
	workdir, _ := flags.GetString("workdir")
	metricsAddr, _ := flags.GetString("metrics-addr")
	configPath, _ := flags.GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// A flag the caller actually passed wins; otherwise the config file's or
	// environment's value (already layered into cfg by config.Load) applies,
	// so --config/env reach every ExecutorSpec tunable, not just logging.
	if !flags.Changed("batch-size") {
		batchSize = cfg.Exec.BatchSize
	}
	if !flags.Changed("segment-size") {
		segmentSize = cfg.Exec.SegmentSize
	}
	if !flags.Changed("progress-symbol") {
		progressSymbolStr = cfg.Exec.ProgressSymbol
	}
	if !flags.Changed("items-per-sec") {
		itemsPerSec = float64(cfg.Exec.ItemsPerSecond)
	}
	if !flags.Changed("workdir") {
		workdir = cfg.Exec.WorkingDirectory
	}
	if !flags.Changed("processes") && cfg.Exec.NumberOfProcesses > 0 {
		processes = cfg.Exec.NumberOfProcesses
	}
	if !flags.Changed("metrics-addr") && cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.Addr
	}

	if commandTemplate == "" {
		return fmt.Errorf("--command is required")
	}
	progressSymbols := []rune(progressSymbolStr)
	if len(progressSymbols) != 1 {
		return fmt.Errorf("--progress-symbol must be exactly one character")
	}

	var log contract.Logger = logger.NewSlogLogger(logger.New(cfg.Log.Level, cfg.Log.Format))

	if metricsAddr != "" {
		collectors := metrics.NewCollectors()
		log = metrics.Wrap(log, collectors)

		mux := http.NewServeMux()
		mux.Handle("/metrics", collectors.Handler())
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			_ = server.ListenAndServe()
		}()
	}

	runShell := func(item string) error {
		c := exec.Command("sh", "-c", strings.ReplaceAll(commandTemplate, "{}", item))
		c.Dir = workdir
		c.Stdout = nil
		c.Stderr = os.Stderr
		return c.Run()
	}

	errorHandler := contract.ErrorHandlerFunc(func(item string, failure error, log contract.Logger) int {
		policy := retry.NewPolicy()
		if err := policy.Do(context.Background(), func() error { return runShell(item) }); err != nil {
			fmt.Fprintf(os.Stderr, "item %q failed after retries: %v\n", item, err)
			return 1
		}
		return 0
	})

	builder := executor.NewBuilder().
		RunSingleCommand(contract.ActionFunc(runShell)).
		ErrorHandler(errorHandler).
		BatchSize(batchSize).
		SegmentSize(segmentSize).
		ProgressSymbol(progressSymbols[0]).
		WorkingDirectory(workdir).
		ItemsPerSecond(itemsPerSec).
		ProcessLauncherFactory(supervisor.NewExecLauncherFactory()).
		ChildCommandFactory(contract.ChildCommandFactoryFunc(func(contract.ParallelizationInput) []string {
			return childCommand(commandTemplate, batchSize, segmentSize, progressSymbolStr, workdir)
		}))

	if child {
		builder = builder.ChildSourceStream(os.Stdin)
	} else {
		builder = builder.FetchItems(func() ([]string, error) { return readItems(itemsFile) })
	}

	spec, err := builder.Build()
	if err != nil {
		return err
	}

	input := executor.Input{
		Child:                child,
		SingleItem:           singleItem,
		HasSingleItem:        singleItem != "",
		ProcessesOverride:    processes,
		HasProcessesOverride: processes > 0,
		InMainProcess:        inProcess || singleItem != "",
	}

	exitCode, err := executor.Execute(context.Background(), spec, input, os.Stdin, os.Stdout, log)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// childCommand reconstructs this same binary's command line with the
// child-indicator flag added, per §6's childCommandFactory contract.
func childCommand(commandTemplate string, batchSize, segmentSize int, progressSymbol, workdir string) []string {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	cmd := []string{
		exe, "run", "--child",
		"--command", commandTemplate,
		"--batch-size", strconv.Itoa(batchSize),
		"--segment-size", strconv.Itoa(segmentSize),
		"--progress-symbol", progressSymbol,
	}
	if workdir != "" {
		cmd = append(cmd, "--workdir", workdir)
	}
	return cmd
}

// readItems loads a newline-delimited item file, transparently decompressing
// a .gz-suffixed path.
func readItems(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("--items-file is required unless --single-item or --child is given")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening items file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip items file: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var items []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		items = append(items, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
