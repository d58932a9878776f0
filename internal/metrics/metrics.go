// Package metrics provides optional Prometheus instrumentation for a run,
// wired in as a decorator around a contract.Logger so that a caller who
// never asks for metrics never touches client_golang.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ricesearch/riceexec/internal/contract"
)

// Collectors holds every metric riceexec records, registered against its
// own registry so embedding a host's process doesn't collide with its own
// default registry.
type Collectors struct {
	ItemsProcessed      prometheus.Counter
	ChildrenSpawned     prometheus.Counter
	ChildrenReaped      prometheus.Counter
	UnexpectedOutputs   prometheus.Counter
	registry            *prometheus.Registry
}

// NewCollectors builds and registers a fresh set of collectors.
func NewCollectors() *Collectors {
	registry := prometheus.NewRegistry()

	c := &Collectors{
		ItemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riceexec_items_processed_total",
			Help: "Total number of items dispatched to the per-item action.",
		}),
		ChildrenSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riceexec_children_spawned_total",
			Help: "Total number of child processes spawned by the supervisor.",
		}),
		ChildrenReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riceexec_children_reaped_total",
			Help: "Total number of child processes reaped by the supervisor.",
		}),
		UnexpectedOutputs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riceexec_unexpected_child_output_total",
			Help: "Total number of child output chunks that were not pure progress-symbol bytes.",
		}),
		registry: registry,
	}

	registry.MustRegister(c.ItemsProcessed, c.ChildrenSpawned, c.ChildrenReaped, c.UnexpectedOutputs)
	return c
}

// Handler exposes the collectors on an http.Handler (demo CLI's
// --metrics-addr flag serves this).
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// loggerDecorator wraps a contract.Logger, incrementing collectors on the
// calls that correspond to a countable engine event, and forwarding every
// call unmodified to the wrapped logger.
type loggerDecorator struct {
	contract.Logger
	collectors *Collectors
}

// Wrap returns a contract.Logger that behaves exactly as log does, plus
// incrementing c's collectors on LogAdvance, LogCommandStarted,
// LogCommandFinished and LogUnexpectedChildProcessOutput.
func Wrap(log contract.Logger, c *Collectors) contract.Logger {
	return &loggerDecorator{Logger: log, collectors: c}
}

func (d *loggerDecorator) LogAdvance(delta int) {
	d.collectors.ItemsProcessed.Add(float64(delta))
	d.Logger.LogAdvance(delta)
}

func (d *loggerDecorator) LogCommandStarted(cmd []string) {
	d.collectors.ChildrenSpawned.Inc()
	d.Logger.LogCommandStarted(cmd)
}

func (d *loggerDecorator) LogCommandFinished(index, pid int) {
	d.collectors.ChildrenReaped.Inc()
	d.Logger.LogCommandFinished(index, pid)
}

func (d *loggerDecorator) LogUnexpectedChildProcessOutput(index, pid int, kind contract.StreamKind, chunk []byte, progressSymbol rune) {
	d.collectors.UnexpectedOutputs.Inc()
	d.Logger.LogUnexpectedChildProcessOutput(index, pid, kind, chunk, progressSymbol)
}
