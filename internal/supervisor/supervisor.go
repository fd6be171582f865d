// Package supervisor owns one agent child process's lifetime: spawning it,
// reading its structured stdout stream into typed events, enforcing a
// wall-clock timeout with a graceful-then-forceful kill escalation, and
// classifying how the run ended.
//
// Grounded on the teacher's process-group spawn/kill discipline (Setpgid,
// SIGTERM-then-SIGKILL against the whole group) and its three-way split per
// process (stdout reader, stderr drain, wait): the reader and the drain run
// under a single errgroup, and Wait is called once both have finished.
package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/eventpb"
)

// maxLineBytes bounds a single child output line; lines are expected to be
// a single JSON object and should never approach this, but an unbounded
// scanner buffer is an OOM vector on a misbehaving or malicious child.
const maxLineBytes = 4 * 1024 * 1024

// Status is the outcome classification of one supervised run.
type Status string

const (
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// EmitFunc receives each decoded event in arrival order, exactly as the
// event hub expects to ingest them (sequence/timestamp assignment happens
// downstream, not here).
type EmitFunc func(kind eventpb.Kind, payload any)

// Params are the resolved execution parameters for one run.
type Params struct {
	Command     []string // argv[0] is the executable; already sandbox-wrapped if applicable
	WorkingDir  string
	Env         []string // full environment, already merged by the caller
	Timeout     time.Duration
	GracePeriod time.Duration

	// CheckPermission is consulted on every tool_start event, already bound
	// to this session's id and workspace by the caller. If it reports
	// interrupt, the supervisor cancels the run itself, mirroring the
	// agent-host abort spec.md's permission engine describes.
	CheckPermission func(toolCall string) (allowed, interrupt bool)
}

// Outcome is the terminal classification of a supervised run.
type Outcome struct {
	Status   Status
	ResumeID string
	Err      error
}

// Supervisor runs a single agent child process and can be cancelled once,
// concurrently with Run, from another goroutine.
type Supervisor struct {
	log *logger.Logger

	mu              sync.Mutex
	cancelRequested bool
	proc            *exec.Cmd
	gracePeriod     time.Duration
}

// New constructs a Supervisor scoped to sessionID for logging.
func New(log *logger.Logger, sessionID string) *Supervisor {
	return &Supervisor{
		log: log.WithFields(zap.String("component", "supervisor"), zap.String("session_id", sessionID)),
	}
}

// Run spawns the child, streams its output through emit, and blocks until
// the child exits or ctx is cancelled. It never returns a non-terminal
// Outcome: a spawn failure or stream error is reported as StatusFailed
// with Err set, never a bare error return, so callers always have a
// session status to persist.
func (s *Supervisor) Run(ctx context.Context, params Params, emit EmitFunc) Outcome {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timer *time.Timer
	timedOut := make(chan struct{})
	if params.Timeout > 0 {
		timer = time.AfterFunc(params.Timeout, func() {
			close(timedOut)
			s.Cancel()
		})
		defer timer.Stop()
	}

	s.mu.Lock()
	s.gracePeriod = params.GracePeriod
	if s.gracePeriod <= 0 {
		s.gracePeriod = 10 * time.Second
	}
	s.mu.Unlock()

	cmd := exec.CommandContext(runCtx, params.Command[0], params.Command[1:]...)
	cmd.Dir = params.WorkingDir
	cmd.Env = params.Env
	setProcGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}

	s.mu.Lock()
	s.proc = cmd
	cancelledBeforeStart := s.cancelRequested
	s.mu.Unlock()
	if cancelledBeforeStart {
		s.signalTerminate()
	}

	var resumeID string
	var resumeOnce sync.Once
	captureResume := func(kind eventpb.Kind, payload any) {
		switch kind {
		case eventpb.KindAgentStart:
			resumeOnce.Do(func() {
				if p, ok := payload.(eventpb.AgentStartPayload); ok {
					resumeID = p.SessionID
				}
			})
		case eventpb.KindToolStart:
			if params.CheckPermission != nil {
				if p, ok := payload.(eventpb.ToolStartPayload); ok {
					if _, interrupt := params.CheckPermission(formatToolCall(p)); interrupt {
						s.Cancel()
					}
				}
			}
		}
		emit(kind, payload)
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		s.readLines(groupCtx, stdout, captureResume)
		return nil
	})
	group.Go(func() error {
		s.drain(groupCtx, stderr)
		return nil
	})

	waitErr := group.Wait()
	exitErr := cmd.Wait()
	if waitErr != nil && exitErr == nil {
		exitErr = waitErr
	}

	return s.classify(exitErr, resumeID, timedOut)
}

// Cancel requests termination of the running (or not-yet-started) child.
// Idempotent and safe to call before Run's process has actually spawned;
// in that case the pending request is applied as soon as it has.
func (s *Supervisor) Cancel() {
	s.mu.Lock()
	s.cancelRequested = true
	proc := s.proc
	s.mu.Unlock()
	if proc != nil {
		s.signalTerminate()
	}
}

func (s *Supervisor) signalTerminate() {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil || proc.Process == nil {
		return
	}
	if err := signalGroup(proc.Process.Pid, syscall.SIGTERM); err != nil {
		s.log.Debug("sigterm delivery failed", zap.Error(err))
	}

	s.mu.Lock()
	grace := s.gracePeriod
	s.mu.Unlock()
	if grace <= 0 {
		grace = 10 * time.Second
	}
	time.AfterFunc(grace, func() {
		s.mu.Lock()
		p := s.proc
		s.mu.Unlock()
		if p == nil || p.ProcessState != nil {
			return
		}
		if p.Process != nil {
			_ = signalGroup(p.Process.Pid, syscall.SIGKILL)
		}
	})
}

// readLines scans stdout line by line, decoding each into an event and
// forwarding it via emit. A malformed line is logged and skipped; it never
// aborts the stream, per spec.
func (s *Supervisor) readLines(ctx context.Context, r io.Reader, emit EmitFunc) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		kind, payload, err := parseLine(line)
		if err != nil {
			s.log.Debug("dropping malformed child output line", zap.Error(err))
			continue
		}
		emit(kind, payload)
	}
}

// drain discards stderr, logging non-empty lines at debug level. The
// agent's structured output is exclusively on stdout; stderr is
// diagnostic only.
func (s *Supervisor) drain(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			s.log.Debug("agent stderr", zap.ByteString("line", line))
		}
	}
}

// classify maps a process exit into an Outcome per spec §4.6: timeout wins
// (the timeout kills through Cancel, so it also sets cancelRequested), then
// cancel requested, then plain exit-code success/failure. The
// caller (lifecycle manager) is responsible for having already observed an
// agent_complete event to decide between complete/failed on a clean exit;
// classify only distinguishes process-level causes.
func (s *Supervisor) classify(exitErr error, resumeID string, timedOut chan struct{}) Outcome {
	s.mu.Lock()
	cancelled := s.cancelRequested
	s.mu.Unlock()

	select {
	case <-timedOut:
		return Outcome{Status: StatusFailed, ResumeID: resumeID, Err: errTimeout}
	default:
	}

	if cancelled {
		return Outcome{Status: StatusCancelled, ResumeID: resumeID}
	}

	if exitErr != nil {
		return Outcome{Status: StatusFailed, ResumeID: resumeID, Err: exitErr}
	}
	return Outcome{Status: StatusComplete, ResumeID: resumeID}
}

var errTimeout = errors.New("agent wall-clock timeout exceeded")

// formatToolCall renders a ToolStartPayload as the "ToolName(argument...)"
// string the permission engine matches patterns against. Bash-shaped tools
// carry their primary argument under a "command" key; anything else falls
// back to a compact rendering of the whole input map.
func formatToolCall(p eventpb.ToolStartPayload) string {
	if cmd, ok := p.ToolInput["command"].(string); ok {
		return p.ToolName + "(" + cmd + ")"
	}
	if path, ok := p.ToolInput["path"].(string); ok {
		return p.ToolName + "(" + path + ")"
	}
	if b, err := json.Marshal(p.ToolInput); err == nil {
		return p.ToolName + "(" + string(b) + ")"
	}
	return p.ToolName + "()"
}
