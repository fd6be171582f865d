package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentum.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestGetOrCreateUserAllocatesID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.GetOrCreateUser(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, UserTypeAnonymous, u.Type)

	again, err := repo.GetOrCreateUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
}

func TestCreateAndGetSessionEnforcesOwnership(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.GetOrCreateUser(ctx, "")
	require.NoError(t, err)

	s, err := repo.CreateSession(ctx, u.ID, "20260105_123456_deadbeef", "do the thing", "sonnet", "/work")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s.Status)

	got, err := repo.GetSession(ctx, s.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = repo.GetSession(ctx, s.ID, "someone-else")
	assert.Error(t, err)
}

func TestUpdateSessionPartialUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.GetOrCreateUser(ctx, "")
	require.NoError(t, err)
	s, err := repo.CreateSession(ctx, u.ID, "20260105_123456_deadbeef", "task", "sonnet", "/work")
	require.NoError(t, err)

	status := StatusRunning
	turns := 3
	updated, err := repo.UpdateSession(ctx, s.ID, SessionUpdate{Status: &status, NumTurns: &turns})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, updated.Status)
	assert.Equal(t, 3, updated.NumTurns)
	assert.Equal(t, s.Task, updated.Task)

	_, err = repo.UpdateSession(ctx, "does-not-exist", SessionUpdate{Status: &status})
	assert.Error(t, err)
}

func TestListSessionsPaginatesNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, err := repo.GetOrCreateUser(ctx, "")
	require.NoError(t, err)

	ids := []string{"20260105_000001_deadbeef", "20260105_000002_deadbeef", "20260105_000003_deadbeef"}
	for _, id := range ids {
		_, err := repo.CreateSession(ctx, u.ID, id, "task", "sonnet", "/work")
		require.NoError(t, err)
	}

	sessions, total, err := repo.ListSessions(ctx, u.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, sessions, 2)
	assert.Equal(t, ids[2], sessions[0].ID)
	assert.Equal(t, ids[1], sessions[1].ID)
}

func TestRecordAndListEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, err := repo.GetOrCreateUser(ctx, "")
	require.NoError(t, err)
	s, err := repo.CreateSession(ctx, u.ID, "20260105_123456_deadbeef", "task", "sonnet", "/work")
	require.NoError(t, err)

	for i := uint64(1); i <= 3; i++ {
		err := repo.RecordEvent(ctx, StoredEvent{
			SessionID: s.ID,
			Sequence:  i,
			Kind:      "message",
			Payload:   []byte(`{"text":"hi"}`),
			Timestamp: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	events, err := repo.ListEvents(ctx, s.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Sequence)
	assert.Equal(t, uint64(3), events[1].Sequence)
}

func TestCleanupStaleSessionsTransitionsRunningToFailed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, err := repo.GetOrCreateUser(ctx, "")
	require.NoError(t, err)
	s, err := repo.CreateSession(ctx, u.ID, "20260105_123456_deadbeef", "task", "sonnet", "/work")
	require.NoError(t, err)

	running := StatusRunning
	_, err = repo.UpdateSession(ctx, s.ID, SessionUpdate{Status: &running})
	require.NoError(t, err)

	n, err := repo.CleanupStaleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetSession(ctx, s.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}
