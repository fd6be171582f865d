package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/extractumio/agentum/internal/eventpb"
)

// StreamEvents serves the Server-Sent Events stream for one session,
// grounded on telnet2-opencode's sse.go: a flush-after-every-frame writer,
// a heartbeat comment line on idle, and the connection ending once a
// terminal event has been written. ?after=<sequence> replays buffered
// history before switching to live delivery, so a reconnecting client can
// pick up exactly where it left off.
//
// If the session's agent process has already finished (or never started),
// GetHub misses and there is no live stream left to join; per spec.md §4.7
// and §8's replay scenario, the persisted prefix is still owed to the
// caller, so that case replays it from the store and closes instead of
// erroring.
func (h *Handler) StreamEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.facade.Store.GetSession(c.Request.Context(), id, userID(c)); err != nil {
		writeErr(c, err)
		return
	}

	after := queryUint(c, "after", 0)

	hub, ok := h.facade.Lifecycle.GetHub(id)
	if !ok {
		h.streamStoredEvents(c, id, after)
		return
	}

	sub := hub.Subscribe(after)
	defer sub.Close()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	interval := h.facade.Config.Sessions.HeartbeatInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			if err := writeSSEFrame(w, rc, ev); err != nil {
				h.log.Debug("sse client disconnected mid-write", zap.String("session_id", id), zap.Error(err))
				return
			}
			if ev.Terminal() {
				return
			}
			ticker.Reset(interval)
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// streamStoredEvents serves the persisted prefix for a session whose agent
// process is no longer live: the entire persisted history after after,
// each frame decoded back into an eventpb.Event so the response has
// exactly the shape a live SSE frame would, then the connection closes.
// No heartbeat is needed since there is nothing further to wait for.
func (h *Handler) streamStoredEvents(c *gin.Context, id string, after uint64) {
	stored, err := h.facade.Store.ListEvents(c.Request.Context(), id, after)
	if err != nil {
		writeErr(c, err)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for _, se := range stored {
		ev, err := eventpb.FromStored(se.Kind, se.Sequence, se.Timestamp, se.Payload)
		if err != nil {
			h.log.Error("failed to decode stored event for replay",
				zap.String("session_id", id), zap.String("kind", se.Kind), zap.Error(err))
			continue
		}
		if err := writeSSEFrame(w, rc, ev); err != nil {
			h.log.Debug("sse client disconnected mid-replay", zap.String("session_id", id), zap.Error(err))
			return
		}
	}
}

// writeSSEFrame renders one event as the documented wire frame:
// "id: <sequence>\ndata: <json>\n\n", flushed immediately so the client
// sees it without buffering delay.
func writeSSEFrame(w http.ResponseWriter, rc *http.ResponseController, ev eventpb.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Sequence, payload); err != nil {
		return err
	}
	return rc.Flush()
}
