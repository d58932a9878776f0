package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/ricesearch/riceexec/internal/contract"
)

// execLauncherFactory is the default ProcessLauncherFactory, backed by
// os/exec. It is the launcher the demo CLI wires; hosts embedding the
// engine as a library may supply their own.
type execLauncherFactory struct {
	command []string
	cwd     string
	env     []string
	onOutput contract.OutputCallback
}

// NewExecLauncherFactory returns a ProcessLauncherFactory that spawns
// children with os/exec using the supplied environment as is (the parent's
// own environment when it is nil), and forwards stdout/stderr chunks to
// onOutput as they arrive.
func NewExecLauncherFactory() contract.ProcessLauncherFactory {
	return &execLauncherFactory{}
}

func (f *execLauncherFactory) Create(command []string, cwd string, env []string, processLimit, segmentSize int, log contract.Logger, onOutput contract.OutputCallback, tick func()) (contract.ProcessLauncher, error) {
	if len(command) == 0 {
		return nil, errors.New("supervisor: empty child command")
	}
	return &execLauncher{
		command:  command,
		cwd:      cwd,
		env:      env,
		onOutput: onOutput,
	}, nil
}

type execLauncher struct {
	command  []string
	cwd      string
	env      []string
	onOutput contract.OutputCallback
}

func (l *execLauncher) Launch(ctx context.Context, index int) (contract.ProcessHandle, error) {
	// Not exec.CommandContext: on cancellation the supervisor closes stdin,
	// waits out its grace period and only then calls Kill.
	cmd := exec.Command(l.command[0], l.command[1:]...)
	cmd.Dir = l.cwd
	cmd.Env = l.env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start child: %w", err)
	}

	pid := cmd.Process.Pid
	h := &execHandle{
		cmd:  cmd,
		in:   stdin,
		pid:  &pid,
		done: make(chan struct{}),
	}

	var pumpWG sync.WaitGroup
	pumpWG.Add(2)
	go h.pump(&pumpWG, index, stdout, contract.StreamStdout, l.onOutput)
	go h.pump(&pumpWG, index, stderr, contract.StreamStderr, l.onOutput)
	go h.await(&pumpWG)

	return h, nil
}

type execHandle struct {
	cmd      *exec.Cmd
	in       io.WriteCloser
	pid      *int
	done     chan struct{}
	exitCode int
	waitErr  error
}

func (h *execHandle) pump(wg *sync.WaitGroup, index int, r io.Reader, kind contract.StreamKind, onOutput contract.OutputCallback) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(index, h.pid, kind, chunk)
		}
		if err != nil {
			return
		}
	}
}

func (h *execHandle) await(pumpWG *sync.WaitGroup) {
	pumpWG.Wait()
	err := h.cmd.Wait()
	h.waitErr = err
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.exitCode = exitErr.ExitCode()
		} else {
			h.exitCode = -1
		}
	}
	close(h.done)
}

func (h *execHandle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *execHandle) PID() *int {
	return h.pid
}

func (h *execHandle) Stdin() contract.WriteCloser {
	return h.in
}

func (h *execHandle) Wait() (int, error) {
	<-h.done
	return h.exitCode, h.waitErr
}

func (h *execHandle) Kill() error {
	return terminateProcess(h)
}
