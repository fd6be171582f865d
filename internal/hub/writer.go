package hub

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/extractumio/agentum/internal/apperr"
	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/eventpb"
	"github.com/extractumio/agentum/internal/store"
)

// Writer is the single persistence consumer for one hub's events. It reads
// off a buffered channel so a slow metadata store write never blocks event
// streaming, and vice versa. When persistence fails terminally, it reports
// the failure back onto the hub and aborts the run via onFatal, rather
// than letting the agent keep running with a silently broken event trail.
type Writer struct {
	sessionID string
	repo      store.Repository
	hub       *Hub
	onFatal   func()
	log       *logger.Logger
}

// NewWriter constructs a Writer bound to sessionID and repo, publishing
// onto hub and invoking onFatal (e.g. the owning supervisor's Cancel) if a
// persisted write exhausts its retry budget. onFatal may be nil in tests
// that don't need to observe the abort.
func NewWriter(sessionID string, repo store.Repository, hub *Hub, onFatal func(), log *logger.Logger) *Writer {
	return &Writer{
		sessionID: sessionID,
		repo:      repo,
		hub:       hub,
		onFatal:   onFatal,
		log:       log.WithFields(zap.String("component", "event-writer"), zap.String("session_id", sessionID)),
	}
}

// Run drains ch until it has written the stream's terminal event, ch is
// closed, or ctx is cancelled. Writes are serialized: one event is
// committed at a time, in arrival order.
func (w *Writer) Run(ctx context.Context, ch <-chan eventpb.Event) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			w.write(ctx, ev)
			if ev.Terminal() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, ev eventpb.Event) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		w.log.Error("failed to encode event payload", zap.Error(err), zap.String("kind", string(ev.Kind)))
		return
	}

	stored := store.StoredEvent{
		SessionID: w.sessionID,
		Sequence:  ev.Sequence,
		Kind:      string(ev.Kind),
		Payload:   payload,
		Timestamp: ev.Timestamp,
	}
	if err := w.repo.RecordEvent(ctx, stored); err != nil {
		w.log.Error("persisting event failed after retry budget exhausted, aborting run",
			zap.Error(err), zap.String("kind", string(ev.Kind)), zap.Uint64("sequence", ev.Sequence))
		w.hub.Publish(eventpb.KindError, eventpb.ErrorPayload{
			Message:   "event persistence failed, run aborted: " + err.Error(),
			ErrorType: apperr.CodePersistence,
		})
		if w.onFatal != nil {
			w.onFatal()
		}
	}
}
