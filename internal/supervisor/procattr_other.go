//go:build !linux

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the child in its own process group. Pdeathsig is
// Linux-only, so non-Linux builds rely solely on Stop's explicit kill.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(pid int, sig syscall.Signal) error {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return syscall.Kill(pid, sig)
	}
	return syscall.Kill(-pgid, sig)
}
