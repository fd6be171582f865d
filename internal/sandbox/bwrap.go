// Package sandbox wraps a plain agent command vector in a bubblewrap
// (bwrap) invocation that enforces process-level isolation: fresh
// namespaces, a cleared and re-populated environment, and a fixed set of
// bind mounts. Sandboxing is fail-closed: if bwrap is required but its
// binary cannot be resolved, NewLauncher refuses to build a Launcher rather
// than falling back to a direct exec.
package sandbox

import (
	"os"
	"strconv"

	"github.com/extractumio/agentum/internal/apperr"
	"github.com/extractumio/agentum/internal/common/config"
)

// Launcher builds wrapped command vectors from a SandboxConfig.
type Launcher struct {
	cfg config.SandboxConfig
}

// NewLauncher validates cfg and returns a Launcher. When cfg.Enabled is
// true, the bwrap binary must exist at cfg.BwrapPath or construction fails
// with ErrSandboxUnavailable — checked once at startup so a missing
// isolation binary is reported before any session tries to launch.
func NewLauncher(cfg config.SandboxConfig) (*Launcher, error) {
	if cfg.Enabled {
		if _, err := os.Stat(cfg.BwrapPath); err != nil {
			return nil, apperr.SandboxUnavailable("bwrap binary not found at " + cfg.BwrapPath)
		}
	}
	return &Launcher{cfg: cfg}, nil
}

// Enabled reports whether this launcher wraps commands at all.
func (l *Launcher) Enabled() bool {
	return l.cfg.Enabled
}

// WrapParams carries the per-session values needed to finish building the
// bwrap argv: the workspace bind target, the shared skills tree, and the
// environment variables the agent process should see.
type WrapParams struct {
	WorkspaceHostPath    string
	WorkspaceSandboxPath string
	SkillsHostPath       string
	SkillsSandboxPath    string
	Env                  map[string]string
}

const defaultWorkspaceSandboxPath = "/workspace"
const defaultSkillsSandboxPath = "/workspace/skills"

// Wrap takes a plain agent command vector (argv[0] is the executable) and
// returns the full bwrap-wrapped vector. If sandboxing is disabled, cmd is
// returned unchanged — this is a deliberate, configured choice, not a
// fallback from a failed Wrap: NewLauncher already fails closed when
// sandboxing is required and unavailable.
func (l *Launcher) Wrap(cmd []string, params WrapParams) []string {
	if !l.cfg.Enabled {
		return cmd
	}

	wsTarget := params.WorkspaceSandboxPath
	if wsTarget == "" {
		wsTarget = defaultWorkspaceSandboxPath
	}
	skillsTarget := params.SkillsSandboxPath
	if skillsTarget == "" {
		skillsTarget = defaultSkillsSandboxPath
	}

	argv := []string{l.cfg.BwrapPath}

	if l.cfg.UnsharePID {
		argv = append(argv, "--unshare-pid")
	}
	if l.cfg.UnshareIPC {
		argv = append(argv, "--unshare-ipc")
	}
	if l.cfg.UnshareUTS {
		argv = append(argv, "--unshare-uts")
	}
	// New session isolates the child from the controlling TTY so signals
	// delivered to the launcher's process group (e.g. Ctrl-C in a parent
	// shell) don't reach the sandboxed agent directly.
	argv = append(argv, "--new-session")
	// Child dies if the launcher process dies, mirroring Pdeathsig at the
	// supervisor level but enforced by bwrap itself for the sandboxed case.
	argv = append(argv, "--die-with-parent")

	for _, m := range l.cfg.SystemMounts {
		flag := "--ro-bind"
		if m.Mode == "rw" {
			flag = "--bind"
		}
		argv = append(argv, flag, m.Source, m.Target)
	}

	if params.WorkspaceHostPath != "" {
		argv = append(argv, "--bind", params.WorkspaceHostPath, wsTarget)
	}
	if params.SkillsHostPath != "" {
		argv = append(argv, "--ro-bind", params.SkillsHostPath, skillsTarget)
	}

	argv = append(argv, "--tmpfs", "/tmp")
	if l.cfg.TmpfsSize > 0 {
		argv = append(argv, "--size", strconv.FormatInt(l.cfg.TmpfsSize, 10))
	}

	argv = append(argv, "--chdir", wsTarget)

	if l.cfg.Environment.ClearEnv {
		argv = append(argv, "--clearenv")
	}
	if l.cfg.Environment.Home != "" {
		argv = append(argv, "--setenv", "HOME", l.cfg.Environment.Home)
	}
	if l.cfg.Environment.Path != "" {
		argv = append(argv, "--setenv", "PATH", l.cfg.Environment.Path)
	}
	for k, v := range params.Env {
		argv = append(argv, "--setenv", k, v)
	}

	argv = append(argv, "--")
	argv = append(argv, cmd...)
	return argv
}
