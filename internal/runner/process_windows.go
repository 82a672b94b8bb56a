//go:build windows

package runner

import (
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
		HideWindow:    true,
	}
}

// killTree uses taskkill /T, since diskpart and powershell commonly spawn
// their own children that survive a plain Kill.
func killTree(cmd *exec.Cmd) error {
	pid := strconv.Itoa(cmd.Process.Pid)
	if err := exec.Command("taskkill", "/PID", pid, "/T", "/F").Run(); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
