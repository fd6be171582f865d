package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/extractumio/agentum/internal/apperr"
	"github.com/extractumio/agentum/internal/eventpb"
	"github.com/extractumio/agentum/internal/lifecycle"
)

// IssueToken mints a bearer token for a (possibly freshly allocated) user
// id. There is no password or credential here by design: v1 identity is
// whatever the caller says it is, matching spec.md's anonymous-user model.
func (h *Handler) IssueToken(c *gin.Context) {
	// The request body is optional: a caller with no prior identity may
	// POST with no body at all and receive a fresh anonymous user.
	var req TokenRequest
	_ = c.ShouldBindJSON(&req)
	user, err := h.facade.Store.GetOrCreateUser(c.Request.Context(), req.UserID)
	if err != nil {
		writeErr(c, err)
		return
	}
	token, err := h.auth.IssueToken(user.ID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: token, UserID: user.ID})
}

// ListSessions returns the caller's sessions, newest first.
func (h *Handler) ListSessions(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	sessions, total, err := h.facade.Store.ListSessions(c.Request.Context(), userID(c), limit, offset)
	if err != nil {
		writeErr(c, err)
		return
	}
	resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions)), Total: total}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, sessionResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

// RunSession creates and starts a new session for the caller.
func (h *Handler) RunSession(c *gin.Context) {
	var req RunSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apperr.Validation("task is required"))
		return
	}
	row, _, err := h.facade.Run(c.Request.Context(), lifecycle.RunParams{
		UserID: userID(c),
		Task:   req.Task,
		Model:  req.Model,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse(row))
}

// GetSession returns one session snapshot, scoped to the caller.
func (h *Handler) GetSession(c *gin.Context) {
	row, err := h.facade.Store.GetSession(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(row))
}

// ContinueSession resumes a finished session with new task text.
func (h *Handler) ContinueSession(c *gin.Context) {
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apperr.Validation("task is required"))
		return
	}
	row, _, err := h.facade.Resume(c.Request.Context(), c.Param("id"), userID(c), req.Task)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(row))
}

// CancelSession requests termination of a running session. Idempotent:
// cancelling an already-terminal session is a no-op, not an error.
func (h *Handler) CancelSession(c *gin.Context) {
	if err := h.facade.Cancel(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GetResult returns the session's structured output, reading
// workspace/output.yaml alongside the store row for status and timing.
func (h *Handler) GetResult(c *gin.Context) {
	id := c.Param("id")
	row, err := h.facade.Store.GetSession(c.Request.Context(), id, userID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	parsed, err := h.facade.FS.ParseOutput(id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ResultResponse{
		Output:      parsed.Output,
		Error:       parsed.Error,
		Comments:    parsed.Comments,
		ResultFiles: parsed.ResultFiles,
		Status:      string(row.Status),
		NumTurns:    row.NumTurns,
		DurationMs:  row.DurationMs,
	})
}

// EventHistory replays persisted events after a given sequence, for a
// client that wants batch catch-up rather than a live stream. Each
// persisted row is decoded back into an eventpb.Event so the response uses
// the same {type, data, timestamp, sequence} wire shape the SSE stream
// sends, rather than the raw storage row.
func (h *Handler) EventHistory(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.facade.Store.GetSession(c.Request.Context(), id, userID(c)); err != nil {
		writeErr(c, err)
		return
	}
	after := queryUint(c, "after", 0)
	stored, err := h.facade.Store.ListEvents(c.Request.Context(), id, after)
	if err != nil {
		writeErr(c, err)
		return
	}
	events := make([]eventpb.Event, 0, len(stored))
	for _, se := range stored {
		ev, err := eventpb.FromStored(se.Kind, se.Sequence, se.Timestamp, se.Payload)
		if err != nil {
			h.log.Error("failed to decode stored event for history",
				zap.String("session_id", id), zap.String("kind", se.Kind), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetFile serves a single workspace-relative file from a session's
// workspace, rejecting any path that escapes it.
func (h *Handler) GetFile(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.facade.Store.GetSession(c.Request.Context(), id, userID(c)); err != nil {
		writeErr(c, err)
		return
	}
	rel := c.Query("path")
	if rel == "" {
		writeErr(c, apperr.Validation("path query parameter is required"))
		return
	}
	path, err := h.facade.FS.WorkspaceFile(id, rel)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.File(path)
}

// Healthz is an unconditional liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports readiness by touching the store.
func (h *Handler) Readyz(c *gin.Context) {
	if _, _, err := h.facade.Store.ListSessions(c.Request.Context(), "__readyz__", 1, 0); err != nil {
		writeErr(c, apperr.Wrap(err, "store not ready"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func queryUint(c *gin.Context, key string, def uint64) uint64 {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}
