//go:build !windows

package runner

import (
	"os/exec"
	"syscall"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child into its own process group so that the
// whole tree can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killTree(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		// Already gone or not ours; fall back to the single process.
		return cmd.Process.Kill()
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
