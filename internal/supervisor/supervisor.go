// Package supervisor implements the process supervisor (§4.4): a bounded
// pool of child processes fed one segment each over stdin, with eager
// reaping so new children can be spawned as soon as a slot frees up.
package supervisor

import (
	"context"
	"iter"
	"time"

	"golang.org/x/time/rate"

	"github.com/ricesearch/riceexec/internal/contract"
	"github.com/ricesearch/riceexec/internal/demux"
	apperrors "github.com/ricesearch/riceexec/internal/pkg/errors"
)

// pollInterval is the only time-based constant in the design (§4.4); it is
// not a correctness parameter.
const pollInterval = time.Millisecond

// gracePeriod bounds how long a child is given to exit after its stdin is
// closed before the supervisor escalates to Kill, honoring the
// cancellation guidance of §5.
const gracePeriod = 2 * time.Second

// Supervisor runs a bounded pool of children, one segment each.
type Supervisor struct {
	factory      contract.ProcessLauncherFactory
	command      []string
	cwd          string
	env          []string
	processLimit int
	segmentSize  int
	log          contract.Logger
	demux        *demux.Demux
	tick         func()
	limiter      *rate.Limiter
}

// New builds a Supervisor. tick may be nil.
func New(factory contract.ProcessLauncherFactory, command []string, cwd string, env []string, processLimit, segmentSize int, log contract.Logger, progressSymbol rune, tick func()) *Supervisor {
	if tick == nil {
		tick = func() {}
	}
	return &Supervisor{
		factory:      factory,
		command:      command,
		cwd:          cwd,
		env:          env,
		processLimit: processLimit,
		segmentSize:  segmentSize,
		log:          log,
		demux:        demux.New(progressSymbol, log),
		tick:         tick,
	}
}

// WithRateLimit throttles the rate at which items are written across all
// children's stdin sinks combined to the given items/sec (demo CLI's
// --items-per-sec). A nil limiter disables throttling.
func (s *Supervisor) WithRateLimit(limiter *rate.Limiter) *Supervisor {
	s.limiter = limiter
	return s
}

type runningChild struct {
	index  int
	handle contract.ProcessHandle
}

// Run streams items into a bounded pool of children, one segment per child,
// and returns only after every spawned child has terminated (or, if ctx is
// canceled mid-run, after every child has been given its grace period and
// reaped or killed). Items must be newline-free (§6).
func (s *Supervisor) Run(ctx context.Context, items iter.Seq[string]) error {
	launcher, err := s.factory.Create(s.command, s.cwd, s.env, s.processLimit, s.segmentSize, s.log,
		func(index int, pid *int, kind contract.StreamKind, chunk []byte) {
			s.demux.Handle(index, pid, kind, chunk)
		}, s.tick)
	if err != nil {
		return apperrors.ChildSpawnError(err)
	}

	running := make([]*runningChild, 0, s.processLimit)
	var sink contract.WriteCloser
	k := 0
	nextIndex := 0
	canceled := false

	reap := func() {
		kept := running[:0]
		for _, rc := range running {
			if rc.handle.Running() {
				kept = append(kept, rc)
				continue
			}
			pid := 0
			if p := rc.handle.PID(); p != nil {
				pid = *p
			}
			s.log.LogCommandFinished(rc.index, pid)
		}
		running = kept
	}

	spawnOne := func() error {
		handle, err := launcher.Launch(ctx, nextIndex)
		if err != nil {
			return apperrors.ChildSpawnError(err)
		}
		s.log.LogCommandStarted(s.command)
		running = append(running, &runningChild{index: nextIndex, handle: handle})
		nextIndex++
		sink = handle.Stdin()
		k = 0
		return nil
	}

items:
	for item := range items {
		select {
		case <-ctx.Done():
			canceled = true
			break items
		default:
		}

		if sink != nil && k == s.segmentSize {
			sink.Close()
			sink = nil
			k = 0
		}

		for sink == nil {
			reap()
			s.tick()
			if len(running) < s.processLimit {
				if err := spawnOne(); err != nil {
					return err
				}
				break
			}
			time.Sleep(pollInterval)

			select {
			case <-ctx.Done():
				canceled = true
				break items
			default:
			}
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				canceled = true
				break items
			}
		}

		if _, err := sink.Write([]byte(item + "\n")); err != nil {
			return apperrors.ChildSpawnError(err)
		}
		k++
	}

	if sink != nil {
		sink.Close()
		sink = nil
	}

	if canceled {
		return s.drainWithGrace(running)
	}

	for {
		reap()
		s.tick()
		if len(running) == 0 {
			return nil
		}
		time.Sleep(pollInterval)
	}
}

// drainWithGrace waits up to gracePeriod for the remaining children to exit
// on their own (their stdin is already closed by the time this is called),
// then kills any stragglers.
func (s *Supervisor) drainWithGrace(running []*runningChild) error {
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) && len(running) > 0 {
		kept := running[:0]
		for _, rc := range running {
			if rc.handle.Running() {
				kept = append(kept, rc)
				continue
			}
			pid := 0
			if p := rc.handle.PID(); p != nil {
				pid = *p
			}
			s.log.LogCommandFinished(rc.index, pid)
		}
		running = kept
		if len(running) == 0 {
			break
		}
		time.Sleep(pollInterval)
	}
	for _, rc := range running {
		_ = rc.handle.Kill()
	}
	return context.Canceled
}
