package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extractumio/agentum/internal/common/config"
)

func TestNewLauncherFailsClosedWhenBwrapMissing(t *testing.T) {
	_, err := NewLauncher(config.SandboxConfig{Enabled: true, BwrapPath: "/nonexistent/bwrap"})
	require.Error(t, err)
}

func TestNewLauncherOKWhenDisabled(t *testing.T) {
	l, err := NewLauncher(config.SandboxConfig{Enabled: false, BwrapPath: "/nonexistent/bwrap"})
	require.NoError(t, err)
	assert.False(t, l.Enabled())
}

func TestWrapPassesThroughWhenDisabled(t *testing.T) {
	l, err := NewLauncher(config.SandboxConfig{Enabled: false})
	require.NoError(t, err)

	cmd := []string{"agent", "--task", "hello"}
	assert.Equal(t, cmd, l.Wrap(cmd, WrapParams{}))
}

func TestWrapBuildsExpectedArgv(t *testing.T) {
	l, err := NewLauncher(config.SandboxConfig{
		Enabled:    true,
		BwrapPath:  "/bin/sh", // any existing file satisfies os.Stat
		UnsharePID: true,
		UnshareIPC: true,
		UnshareUTS: true,
		TmpfsSize:  1024,
		SystemMounts: []config.SandboxMount{
			{Source: "/usr", Target: "/usr", Mode: "ro"},
		},
		Environment: config.SandboxEnvironment{ClearEnv: true, Home: "/home/agent", Path: "/usr/bin"},
	})
	require.NoError(t, err)

	argv := l.Wrap([]string{"agent", "run"}, WrapParams{
		WorkspaceHostPath: "/data/sessions/s1/workspace",
		SkillsHostPath:    "/data/skills",
		Env:               map[string]string{"AGENT_SESSION_ID": "s1"},
	})

	assert.Equal(t, "/bin/sh", argv[0])
	assert.Contains(t, argv, "--unshare-pid")
	assert.Contains(t, argv, "--unshare-ipc")
	assert.Contains(t, argv, "--unshare-uts")
	assert.Contains(t, argv, "--die-with-parent")
	assert.Contains(t, argv, "/data/sessions/s1/workspace")
	assert.Contains(t, argv, "/workspace")
	assert.Contains(t, argv, "/data/skills")
	assert.Contains(t, argv, "AGENT_SESSION_ID")

	sepIdx := -1
	for i, a := range argv {
		if a == "--" {
			sepIdx = i
			break
		}
	}
	require.GreaterOrEqual(t, sepIdx, 0)
	assert.Equal(t, []string{"agent", "run"}, argv[sepIdx+1:])
}
