package lifecycle

import (
	"context"
	"fmt"

	"github.com/extractumio/agentum/internal/apperr"
	"github.com/extractumio/agentum/internal/hub"
	"github.com/extractumio/agentum/internal/store"
)

// Resume continues sessionID with newTask. The session must exist, be
// owned by userID, and not currently be running. If the prior run was
// cancelled, newTask is prefixed with a short resume-context block so the
// agent knows it is continuing rather than starting fresh; any stored
// resume_id is threaded through so the agent can rejoin its prior
// conversation context.
func (m *Manager) Resume(ctx context.Context, sessionID, userID, newTask string) (*store.Session, *hub.Hub, error) {
	if newTask == "" {
		return nil, nil, apperr.Validation("task must not be empty")
	}

	row, err := m.repo.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, err
	}
	if row.Status == store.StatusRunning {
		return nil, nil, apperr.Transition("session is still running")
	}

	if err := m.checkCapacity(); err != nil {
		return nil, nil, err
	}

	task := newTask
	if row.Status == store.StatusCancelled {
		task = resumeContextBlock(row) + "\n\n" + newTask
	}

	updated, err := m.repo.UpdateSession(ctx, sessionID, store.SessionUpdate{Task: taskPtr(task)})
	if err != nil {
		return nil, nil, apperr.Persistence("update session task for resume", err)
	}

	h, err := m.start(ctx, updated, row.ResumeID)
	if err != nil {
		return nil, nil, err
	}
	return updated, h, nil
}

// resumeContextBlock documents, for the agent's benefit, that this run
// continues a cancelled one rather than starting cold.
func resumeContextBlock(row *store.Session) string {
	return fmt.Sprintf(
		"[resumed session %s: the previous run on this task was cancelled after %d turn(s). "+
			"Continue from where it left off rather than restarting.]",
		row.ID, row.NumTurns,
	)
}

func taskPtr(s string) *string { return &s }
