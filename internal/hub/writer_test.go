package hub

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/eventpb"
	"github.com/extractumio/agentum/internal/store"
)

// failingRepo always fails RecordEvent, exercising the writer's fatal path
// without needing a real database.
type failingRepo struct{}

func (failingRepo) GetOrCreateUser(ctx context.Context, id string) (*store.User, error) {
	return nil, nil
}
func (failingRepo) CreateSession(ctx context.Context, userID, id, task, model, workingDir string) (*store.Session, error) {
	return nil, nil
}
func (failingRepo) GetSession(ctx context.Context, id, userID string) (*store.Session, error) {
	return nil, nil
}
func (failingRepo) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*store.Session, int, error) {
	return nil, 0, nil
}
func (failingRepo) UpdateSession(ctx context.Context, id string, update store.SessionUpdate) (*store.Session, error) {
	return nil, nil
}
func (failingRepo) RecordEvent(ctx context.Context, ev store.StoredEvent) error {
	return errors.New("disk full")
}
func (failingRepo) ListEvents(ctx context.Context, sessionID string, afterSequence uint64) ([]store.StoredEvent, error) {
	return nil, nil
}
func (failingRepo) CleanupStaleSessions(ctx context.Context) (int, error) { return 0, nil }
func (failingRepo) Close() error                                         { return nil }

var _ store.Repository = failingRepo{}

func TestWriterPublishesErrorAndAbortsOnPersistenceFailure(t *testing.T) {
	persistCh := make(chan eventpb.Event, 1)
	h := New("s1", DefaultBufferSize, persistCh)
	sub := h.Subscribe(0)
	defer sub.Close()

	var aborted atomic.Bool
	writer := NewWriter("s1", failingRepo{}, h, func() { aborted.Store(true) }, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go writer.Run(ctx, persistCh)

	h.Publish(eventpb.KindToolStart, eventpb.ToolStartPayload{ToolName: "Read"})

	deadline := time.After(time.Second)
	for {
		select {
		case ev, ok := <-sub.Events:
			require.True(t, ok)
			if ev.Kind == eventpb.KindToolStart {
				continue
			}
			assert.Equal(t, eventpb.KindError, ev.Kind)
			assert.True(t, ev.Terminal())
			goto aborted
		case <-deadline:
			t.Fatal("timed out waiting for the writer's error event")
		}
	}
aborted:

	require.Eventually(t, func() bool { return aborted.Load() }, time.Second, 5*time.Millisecond)
}
