package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extractumio/agentum/internal/common/config"
	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/lifecycle"
	"github.com/extractumio/agentum/internal/store"
)

func newTestConfig(t *testing.T, agentCommand []string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	permissionsPath := filepath.Join(dir, "permissions.yaml")
	require.NoError(t, os.WriteFile(permissionsPath, []byte("allow:\n  - \"*\"\n"), 0o644))

	return &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "agentum.db")},
		Sessions: config.SessionsConfig{
			WorkspaceRoot:            filepath.Join(dir, "sessions"),
			PermissionsPath:          permissionsPath,
			MaxConcurrent:            4,
			DefaultTimeoutSeconds:    5,
			GracePeriodSeconds:       1,
			HeartbeatIntervalSeconds: 30,
			MaxSubscriberBuffer:      64,
			DenialThreshold:          3,
			AgentCommand:             agentCommand,
		},
		Sandbox: config.SandboxConfig{Enabled: false},
	}
}

func TestNewFacadeWiresEveryLayer(t *testing.T) {
	cfg := newTestConfig(t, []string{"sh", "-c", "true"})

	facade, err := NewFacade(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = facade.Close() })

	assert.NotNil(t, facade.Store)
	assert.NotNil(t, facade.FS)
	assert.NotNil(t, facade.Sandbox)
	assert.NotNil(t, facade.Permission)
	assert.NotNil(t, facade.Lifecycle)
}

func TestFacadeStartupReconcilesCrashedSessions(t *testing.T) {
	cfg := newTestConfig(t, []string{"sh", "-c", "true"})

	facade, err := NewFacade(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = facade.Close() })

	ctx := context.Background()
	u, err := facade.Store.GetOrCreateUser(ctx, "")
	require.NoError(t, err)
	s, err := facade.Store.CreateSession(ctx, u.ID, "20260105_000001_deadbeef", "task", "m", "/work")
	require.NoError(t, err)

	running := store.StatusRunning
	_, err = facade.Store.UpdateSession(ctx, s.ID, store.SessionUpdate{Status: &running})
	require.NoError(t, err)

	require.NoError(t, facade.Startup(ctx))

	got, err := facade.Store.GetSession(ctx, s.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
}

const facadeCompleteScript = `echo '{"type":"agent_start","data":{"session_id":"resume-token","model":"m","tools":[],"working_dir":"","task":""}}'
echo '{"type":"agent_complete","data":{"status":"ok","num_turns":1,"duration_ms":1,"total_cost_usd":0,"usage":{},"model":"m"}}'
`

func TestFacadeRunAndResumeDelegateToLifecycle(t *testing.T) {
	cfg := newTestConfig(t, []string{"sh", "-c", facadeCompleteScript})

	facade, err := NewFacade(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = facade.Close() })

	ctx := context.Background()
	row, h, err := facade.Run(ctx, lifecycle.RunParams{UserID: "u1", Task: "do the thing", Model: "m"})
	require.NoError(t, err)
	require.NotNil(t, h)

	sub := h.Subscribe(0)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				t.Fatal("event stream closed before completion")
			}
			if ev.Terminal() {
				goto completed
			}
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		}
	}
completed:
	sub.Close()

	require.Eventually(t, func() bool {
		s, err := facade.Store.GetSession(ctx, row.ID, "u1")
		return err == nil && s.Status == store.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	resumed, h2, err := facade.Resume(ctx, row.ID, "u1", "continue please")
	require.NoError(t, err)
	assert.Contains(t, resumed.Task, "continue please")
	h2.Subscribe(0).Close()
}

func TestFacadeCancelDelegatesToLifecycle(t *testing.T) {
	cfg := newTestConfig(t, []string{"sh", "-c", "sleep 10"})

	facade, err := NewFacade(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = facade.Close() })

	ctx := context.Background()
	row, h, err := facade.Run(ctx, lifecycle.RunParams{UserID: "u1", Task: "slow task", Model: "m"})
	require.NoError(t, err)

	sub := h.Subscribe(0)
	defer sub.Close()

	require.Eventually(t, func() bool {
		_, ok := facade.Lifecycle.GetHub(row.ID)
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, facade.Cancel(ctx, row.ID, "u1"))
}
