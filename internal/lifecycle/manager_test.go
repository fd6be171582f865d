package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extractumio/agentum/internal/common/config"
	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/eventpb"
	"github.com/extractumio/agentum/internal/permission"
	"github.com/extractumio/agentum/internal/sandbox"
	"github.com/extractumio/agentum/internal/sessionfs"
	"github.com/extractumio/agentum/internal/store"
)

func newTestManager(t *testing.T, agentCommand []string) *Manager {
	t.Helper()

	repo, err := store.NewSQLiteRepository(filepath.Join(t.TempDir(), "agentum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	fs, err := sessionfs.New(filepath.Join(t.TempDir(), "sessions"), "")
	require.NoError(t, err)

	launcher, err := sandbox.NewLauncher(config.SandboxConfig{Enabled: false})
	require.NoError(t, err)

	profile := &permission.Profile{Allow: []string{"*"}}
	permEngine := permission.NewEngine(profile, 3)

	cfg := &config.Config{
		Sessions: config.SessionsConfig{
			MaxConcurrent:            4,
			DefaultTimeoutSeconds:    5,
			GracePeriodSeconds:       1,
			HeartbeatIntervalSeconds: 30,
			MaxSubscriberBuffer:      64,
			DenialThreshold:          3,
			AgentCommand:             agentCommand,
		},
	}

	return NewManager(cfg, repo, fs, launcher, permEngine, logger.Default())
}

func drainUntilTerminal(t *testing.T, events <-chan eventpb.Event, timeout time.Duration) eventpb.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event stream closed before a terminal event arrived")
			}
			if ev.Terminal() {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for a terminal event")
		}
	}
}

const completeScript = `echo '{"type":"agent_start","data":{"session_id":"resume-token","model":"m","tools":[],"working_dir":"","task":""}}'
echo '{"type":"agent_complete","data":{"status":"ok","num_turns":1,"duration_ms":1,"total_cost_usd":0,"usage":{},"model":"m"}}'
`

func TestCreateAndRunCompletesAndPersists(t *testing.T) {
	mgr := newTestManager(t, []string{"sh", "-c", completeScript})
	ctx := context.Background()

	row, h, err := mgr.CreateAndRun(ctx, RunParams{UserID: "u1", Task: "do the thing", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, row.Status)

	sub := h.Subscribe(0)
	defer sub.Close()
	final := drainUntilTerminal(t, sub.Events, 2*time.Second)
	assert.Equal(t, eventpb.KindAgentComplete, final.Kind)

	require.Eventually(t, func() bool {
		s, err := mgr.repo.GetSession(ctx, row.ID, "u1")
		return err == nil && s.Status == store.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := mgr.GetHub(row.ID)
	assert.False(t, ok, "hub should be deregistered once the run finishes")
}

func TestCancelTerminatesRunningSessionAsCancelled(t *testing.T) {
	mgr := newTestManager(t, []string{"sh", "-c", "sleep 10"})
	ctx := context.Background()

	row, h, err := mgr.CreateAndRun(ctx, RunParams{UserID: "u1", Task: "slow task", Model: "m"})
	require.NoError(t, err)

	sub := h.Subscribe(0)
	defer sub.Close()

	require.Eventually(t, func() bool {
		_, ok := mgr.GetHub(row.ID)
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, mgr.Cancel(ctx, row.ID, "u1"))

	final := drainUntilTerminal(t, sub.Events, 5*time.Second)
	assert.Equal(t, eventpb.KindCancelled, final.Kind)

	require.Eventually(t, func() bool {
		s, err := mgr.repo.GetSession(ctx, row.ID, "u1")
		return err == nil && s.Status == store.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResumeRejectsStillRunningSession(t *testing.T) {
	mgr := newTestManager(t, []string{"sh", "-c", "sleep 10"})
	ctx := context.Background()

	row, _, err := mgr.CreateAndRun(ctx, RunParams{UserID: "u1", Task: "slow task", Model: "m"})
	require.NoError(t, err)

	_, _, err = mgr.Resume(ctx, row.ID, "u1", "continue please")
	require.Error(t, err)

	require.NoError(t, mgr.Cancel(ctx, row.ID, "u1"))
}

func TestResumeAfterCancelCarriesResumeContext(t *testing.T) {
	mgr := newTestManager(t, []string{"sh", "-c", completeScript})
	ctx := context.Background()

	row, h, err := mgr.CreateAndRun(ctx, RunParams{UserID: "u1", Task: "first attempt", Model: "m"})
	require.NoError(t, err)
	sub := h.Subscribe(0)
	drainUntilTerminal(t, sub.Events, 2*time.Second)
	sub.Close()

	require.Eventually(t, func() bool {
		s, err := mgr.repo.GetSession(ctx, row.ID, "u1")
		return err == nil && s.Status == store.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	// Manually mark the session cancelled to exercise the resume-context
	// prefix path (a genuinely cancelled-then-resumed session in practice).
	cancelled := store.StatusCancelled
	_, err = mgr.repo.UpdateSession(ctx, row.ID, store.SessionUpdate{Status: &cancelled})
	require.NoError(t, err)

	resumed, h2, err := mgr.Resume(ctx, row.ID, "u1", "continue please")
	require.NoError(t, err)
	assert.Contains(t, resumed.Task, "continue please")
	assert.Contains(t, resumed.Task, "resumed session")

	sub2 := h2.Subscribe(0)
	defer sub2.Close()
	drainUntilTerminal(t, sub2.Events, 2*time.Second)
}
