// Package lifecycle owns the full life of one session: the two-phase
// create/rollback that keeps the metadata row and the on-disk directory in
// lockstep, starting and tracking the live supervisor+hub pair for a
// running session, cancellation, resume, and startup reconciliation of
// rows orphaned by a previous process's crash.
//
// Grounded on the teacher's agent lifecycle manager: a single struct
// owning the store, filesystem, sandbox launcher and permission engine,
// with one goroutine per live run and a mutex-guarded registry of the
// sessions currently in flight.
package lifecycle

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/extractumio/agentum/internal/apperr"
	"github.com/extractumio/agentum/internal/common/appctx"
	"github.com/extractumio/agentum/internal/common/config"
	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/eventpb"
	"github.com/extractumio/agentum/internal/hub"
	"github.com/extractumio/agentum/internal/permission"
	"github.com/extractumio/agentum/internal/sandbox"
	"github.com/extractumio/agentum/internal/sessionfs"
	"github.com/extractumio/agentum/internal/store"
	"github.com/extractumio/agentum/internal/supervisor"
	"github.com/extractumio/agentum/internal/tracing"
)

// liveSession is the in-memory bookkeeping for a session with a running
// agent process: its event hub and the supervisor driving its child.
type liveSession struct {
	hub *hub.Hub
	sup *supervisor.Supervisor
}

// Manager coordinates session creation, execution, cancellation, resume,
// and stale-session reconciliation across the store, filesystem, sandbox,
// and permission layers.
type Manager struct {
	cfg     *config.Config
	repo    store.Repository
	fs      *sessionfs.FS
	sandbox *sandbox.Launcher
	perm    *permission.Engine
	log     *logger.Logger

	mu   sync.Mutex
	live map[string]*liveSession
}

// NewManager constructs a Manager. The caller owns the lifetime of repo,
// fs, sandboxLauncher and permEngine; Manager does not close them.
func NewManager(cfg *config.Config, repo store.Repository, fs *sessionfs.FS, sandboxLauncher *sandbox.Launcher, permEngine *permission.Engine, log *logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		repo:    repo,
		fs:      fs,
		sandbox: sandboxLauncher,
		perm:    permEngine,
		log:     log.WithFields(zap.String("component", "lifecycle")),
		live:    make(map[string]*liveSession),
	}
}

// RunParams are the caller-supplied parameters for starting a new session.
type RunParams struct {
	UserID string
	Task   string
	Model  string
}

// CreateAndRun performs the two-phase session creation (directory tree,
// then metadata row) and starts the agent process in the background. It
// returns as soon as the session row exists and the event hub is ready for
// subscription; the agent itself continues running after this call
// returns.
func (m *Manager) CreateAndRun(ctx context.Context, params RunParams) (*store.Session, *hub.Hub, error) {
	if params.Task == "" {
		return nil, nil, apperr.Validation("task must not be empty")
	}

	if err := m.checkCapacity(); err != nil {
		return nil, nil, err
	}

	id := generateID()
	_, span := tracing.TraceSessionCreate(ctx, id, params.UserID)
	defer span.End()

	if err := m.fs.Create(id); err != nil {
		return nil, nil, err
	}

	workspace, err := m.fs.Workspace(id)
	if err != nil {
		_ = m.fs.Destroy(id)
		return nil, nil, err
	}

	row, err := m.repo.CreateSession(ctx, params.UserID, id, params.Task, params.Model, workspace)
	if err != nil {
		if destroyErr := m.fs.Destroy(id); destroyErr != nil {
			m.log.Error("rollback failed after CreateSession error", zap.Error(destroyErr), zap.String("session_id", id))
		}
		return nil, nil, apperr.Persistence("create session row", err)
	}

	h, err := m.start(ctx, row, "")
	if err != nil {
		return nil, nil, err
	}
	return row, h, nil
}

// checkCapacity enforces sessions.maxConcurrent against the number of
// sessions with a live agent process right now.
func (m *Manager) checkCapacity() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.Sessions.MaxConcurrent > 0 && len(m.live) >= m.cfg.Sessions.MaxConcurrent {
		return apperr.Capacity("too many concurrent sessions")
	}
	return nil
}

// start transitions row to running, registers its hub and supervisor in
// the live registry, and launches the background goroutine that drives
// the agent process to completion. resumeID, if non-empty, is threaded
// into the child's session_info.json so it can continue a prior run.
func (m *Manager) start(ctx context.Context, row *store.Session, resumeID string) (*hub.Hub, error) {
	running := store.StatusRunning
	updated, err := m.repo.UpdateSession(context.Background(), row.ID, store.SessionUpdate{Status: &running})
	if err != nil {
		return nil, apperr.Persistence("transition session to running", err)
	}

	persistCh := make(chan eventpb.Event, hub.DefaultBufferSize)
	h := hub.New(row.ID, m.cfg.Sessions.MaxSubscriberBuffer, persistCh)
	sup := supervisor.New(m.log, row.ID)

	m.mu.Lock()
	m.live[row.ID] = &liveSession{hub: h, sup: sup}
	m.mu.Unlock()

	writer := hub.NewWriter(row.ID, m.repo, h, sup.Cancel, m.log)
	go writer.Run(context.Background(), persistCh)

	go m.runSupervised(ctx, updated, h, sup, resumeID)

	return h, nil
}

// GetHub returns the live event hub for sessionID, if its agent process is
// currently running. Callers should fall back to store-based replay when
// ok is false: the session has either not started or already finished.
func (m *Manager) GetHub(sessionID string) (*hub.Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.live[sessionID]
	if !ok {
		return nil, false
	}
	return ls.hub, true
}

// Cancel requests termination of sessionID's agent process, if one is
// running. Idempotent: cancelling an already-finished or never-started
// session is not an error.
func (m *Manager) Cancel(ctx context.Context, sessionID, userID string) error {
	row, err := m.repo.GetSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if row.Status.Terminal() {
		return nil
	}

	cancelRequested := true
	if _, err := m.repo.UpdateSession(ctx, sessionID, store.SessionUpdate{CancelRequested: &cancelRequested}); err != nil {
		m.log.Error("failed to record cancel request", zap.Error(err), zap.String("session_id", sessionID))
	}

	m.mu.Lock()
	ls, ok := m.live[sessionID]
	m.mu.Unlock()
	if ok {
		ls.sup.Cancel()
	}
	return nil
}

// CleanupStaleSessions reconciles the store at startup: any row left in
// status running by a previous process that crashed or was killed is
// transitioned to failed, since no supervisor can exist across a restart.
func (m *Manager) CleanupStaleSessions(ctx context.Context) (int, error) {
	return m.repo.CleanupStaleSessions(ctx)
}

// sessionInfo is the machine-readable document written to
// session_info.json and also passed inline to the agent process via the
// AGENTUM_SESSION_INFO environment variable, so a sandboxed child sees it
// without requiring an extra bind mount for a single small file.
type sessionInfo struct {
	SessionID  string `json:"session_id"`
	Task       string `json:"task"`
	Model      string `json:"model"`
	ResumeID   string `json:"resume_id,omitempty"`
	WorkingDir string `json:"working_dir"`
	TimeoutSec int    `json:"timeout_seconds"`
}

// runSupervised drives one agent process from spawn to terminal state and
// persists the outcome. It always runs in its own goroutine, detached from
// the originating request context (appctx.Detached) so the HTTP request or
// CLI call that started the session can return without killing the agent;
// only an explicit Cancel or the configured wall-clock timeout ends the run
// early. requestCtx lends the detached context its values only, never its
// cancellation; the detached context carries its own deadline ceiling, a
// safety net well above the supervisor's own timeout.
func (m *Manager) runSupervised(requestCtx context.Context, row *store.Session, h *hub.Hub, sup *supervisor.Supervisor, resumeID string) {
	defer func() {
		m.mu.Lock()
		delete(m.live, row.ID)
		m.mu.Unlock()
		m.perm.ClearSession(row.ID)
	}()

	stopCh := make(chan struct{})
	defer close(stopCh)
	ceiling := m.cfg.Sessions.DefaultTimeout() + m.cfg.Sessions.GracePeriod() + time.Minute
	detachedCtx, cancelDetached := appctx.Detached(requestCtx, stopCh, ceiling)
	defer cancelDetached()

	runCtx, runSpan := tracing.TraceSessionRun(detachedCtx, row.ID, "")
	var outcome supervisor.Outcome
	defer func() {
		tracing.TraceSessionEnd(runSpan, string(outcome.Status), outcome.Err)
		runSpan.End()
	}()

	workspace, err := m.fs.Workspace(row.ID)
	if err != nil {
		outcome = supervisor.Outcome{Status: supervisor.StatusFailed, Err: err}
		m.finish(row, outcome)
		return
	}

	info := sessionInfo{
		SessionID:  row.ID,
		Task:       row.Task,
		Model:      row.Model,
		ResumeID:   resumeID,
		WorkingDir: workspace,
		TimeoutSec: m.cfg.Sessions.DefaultTimeoutSeconds,
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		outcome = supervisor.Outcome{Status: supervisor.StatusFailed, Err: err}
		m.finish(row, outcome)
		return
	}
	if err := m.fs.WriteSessionInfo(row.ID, infoJSON); err != nil {
		m.log.Error("failed to write session_info.json mirror", zap.Error(err), zap.String("session_id", row.ID))
	}

	agentEnv := map[string]string{
		"AGENTUM_SESSION_ID":   row.ID,
		"AGENTUM_SESSION_INFO": string(infoJSON),
	}
	argv := append([]string{}, m.cfg.Sessions.AgentCommand...)
	wrapped := m.sandbox.Wrap(argv, sandbox.WrapParams{
		WorkspaceHostPath:    workspace,
		WorkspaceSandboxPath: "/workspace",
		SkillsHostPath:       m.cfg.Sessions.SkillsDir,
		SkillsSandboxPath:    "/workspace/skills",
		Env:                  agentEnv,
	})
	// Wrap passes agentEnv through bwrap only when sandboxing is enabled;
	// set it on the process environment too so an unwrapped child sees it.
	env := os.Environ()
	for k, v := range agentEnv {
		env = append(env, k+"="+v)
	}

	var sawTerminal bool
	var finalKind eventpb.Kind
	var finalPayload any
	emit := func(kind eventpb.Kind, payload any) {
		ev := h.Publish(kind, payload)
		if ev.Terminal() {
			sawTerminal = true
			finalKind = kind
			finalPayload = payload
		}
	}

	checkPermission := func(toolCall string) (allowed, interrupt bool) {
		_, permSpan := tracing.TracePermissionDecision(runCtx, row.ID, toolCall)
		d := m.perm.IsAllowed(row.ID, toolCall, workspace)
		decision := "deny"
		if d.Allowed {
			decision = "allow"
		}
		tracing.TracePermissionResult(permSpan, decision)
		permSpan.End()
		return d.Allowed, d.Interrupt
	}

	outcome = sup.Run(runCtx, supervisor.Params{
		Command:         wrapped,
		WorkingDir:      workspace,
		Env:             env,
		Timeout:         m.cfg.Sessions.DefaultTimeout(),
		GracePeriod:     m.cfg.Sessions.GracePeriod(),
		CheckPermission: checkPermission,
	}, emit)

	if !sawTerminal {
		finalKind, finalPayload = syntheticTerminalEvent(outcome)
		h.Publish(finalKind, finalPayload)
	}
	// A clean exit counts as complete only when the agent itself reported
	// agent_complete; any other terminal event means the run did not succeed.
	if outcome.Status == supervisor.StatusComplete && finalKind != eventpb.KindAgentComplete {
		outcome.Status = supervisor.StatusFailed
	}

	m.finish(row, outcome)
}

// syntheticTerminalEvent builds the terminal event the agent itself never
// emitted: a crash before producing any structured output, a timeout, or
// an externally requested cancel that arrived before agent_start.
func syntheticTerminalEvent(outcome supervisor.Outcome) (eventpb.Kind, any) {
	switch outcome.Status {
	case supervisor.StatusCancelled:
		return eventpb.KindCancelled, eventpb.CancelledPayload{
			Message:   "session cancelled",
			Resumable: outcome.ResumeID != "",
		}
	case supervisor.StatusFailed:
		errType := apperr.CodeChildCrash
		message := "agent process exited without completing"
		if outcome.Err != nil {
			message = outcome.Err.Error()
		}
		if isTimeoutErr(outcome.Err) {
			errType = apperr.CodeTimeout
		}
		return eventpb.KindError, eventpb.ErrorPayload{Message: message, ErrorType: errType}
	default:
		// Process exited cleanly but produced no terminal event at all:
		// a protocol violation on the agent's part, not a successful run.
		return eventpb.KindError, eventpb.ErrorPayload{
			Message:   "agent exited without emitting a terminal event",
			ErrorType: apperr.CodeChildCrash,
		}
	}
}

func isTimeoutErr(err error) bool {
	return err != nil && err.Error() == "agent wall-clock timeout exceeded"
}

// finish persists the terminal outcome of a run: status, completion time,
// and duration. row is the session as it stood when the run started,
// carrying the CreatedAt needed to compute duration.
func (m *Manager) finish(row *store.Session, outcome supervisor.Outcome) {
	status := store.StatusFailed
	switch outcome.Status {
	case supervisor.StatusComplete:
		status = store.StatusComplete
	case supervisor.StatusCancelled:
		status = store.StatusCancelled
	case supervisor.StatusFailed:
		status = store.StatusFailed
	}

	now := time.Now().UTC()
	var durationMs int64
	if !row.CreatedAt.IsZero() {
		durationMs = now.Sub(row.CreatedAt).Milliseconds()
	}

	update := store.SessionUpdate{
		Status:      &status,
		CompletedAt: &now,
		DurationMs:  &durationMs,
	}
	if outcome.ResumeID != "" {
		update.ResumeID = &outcome.ResumeID
	}

	if _, err := m.repo.UpdateSession(context.Background(), row.ID, update); err != nil {
		m.log.Error("failed to persist terminal session status", zap.Error(err), zap.String("session_id", row.ID))
	}
}
