//go:build linux

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the child in its own process group so the whole tree
// can be signalled together, and arms Pdeathsig so the child is killed if
// this process dies without going through Stop first.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}

func signalGroup(pid int, sig syscall.Signal) error {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return syscall.Kill(pid, sig)
	}
	return syscall.Kill(-pgid, sig)
}
