//go:build !windows

package supervisor

import (
	"time"

	"golang.org/x/sys/unix"
)

// terminateProcess sends SIGTERM and gives the child a short window to exit
// (observed via the same done channel execHandle.await closes once cmd.Wait
// returns) before escalating to SIGKILL. This mirrors the teacher's daemon
// lifecycle handling, applied here to a worker instead of a long-running
// daemon.
func terminateProcess(h *execHandle) error {
	if h.cmd.Process == nil {
		return nil
	}

	if err := unix.Kill(h.cmd.Process.Pid, unix.SIGTERM); err != nil {
		return h.cmd.Process.Kill()
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(200 * time.Millisecond):
		return h.cmd.Process.Kill()
	}
}
