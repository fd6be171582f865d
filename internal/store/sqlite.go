package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/extractumio/agentum/internal/apperr"
	"github.com/extractumio/agentum/internal/common/sqlite"
	"github.com/extractumio/agentum/internal/db"
)

const (
	recordEventMaxAttempts = 5
	recordEventBaseDelay   = 20 * time.Millisecond
)

// SQLiteRepository implements Repository on top of a single-writer SQLite
// connection, following the metadata store's stated concurrency model: one
// writer per session in practice, enforced here at the connection-pool
// level (db.OpenSQLite caps the writer pool at one connection).
type SQLiteRepository struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (or creates) the database at path and
// initializes its schema. Reads go through a separate read-only
// connection pool (db.OpenSQLiteReader): WAL mode lets those proceed
// concurrently with the single writer instead of queuing behind it,
// which matters for GetSession/ListSessions/ListEvents since those are
// on the hot path of every status poll and SSE reconnect.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	conn, err := db.OpenSQLite(path)
	if err != nil {
		return nil, apperr.Persistence("open metadata store", err)
	}
	writer := sqlx.NewDb(conn, "sqlite3")

	repo := &SQLiteRepository{writer: writer}
	if err := repo.initSchema(); err != nil {
		_ = writer.Close()
		return nil, apperr.Persistence("initialize metadata store schema", err)
	}

	readerConn, err := db.OpenSQLiteReader(path)
	if err != nil {
		_ = writer.Close()
		return nil, apperr.Persistence("open metadata store reader pool", err)
	}
	repo.reader = sqlx.NewDb(readerConn, "sqlite3")

	return repo, nil
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL DEFAULT 'anonymous',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL,
		task TEXT NOT NULL,
		model TEXT NOT NULL,
		working_dir TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME,
		num_turns INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		total_cost_usd REAL NOT NULL DEFAULT 0,
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		resume_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS events (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		sequence INTEGER NOT NULL,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL,
		timestamp DATETIME NOT NULL,
		PRIMARY KEY (session_id, sequence)
	);
	`
	if _, err := r.writer.Exec(schema); err != nil {
		return err
	}

	// CREATE TABLE IF NOT EXISTS leaves an already-existing sessions table
	// untouched, so a database created before resume_id was added needs an
	// explicit migration rather than silently losing the column.
	return sqlite.EnsureColumn(r.writer.DB, "sessions", "resume_id", "TEXT NOT NULL DEFAULT ''")
}

func (r *SQLiteRepository) Close() error {
	if err := r.reader.Close(); err != nil {
		_ = r.writer.Close()
		return err
	}
	return r.writer.Close()
}

func (r *SQLiteRepository) GetOrCreateUser(ctx context.Context, id string) (*User, error) {
	if id != "" {
		var u User
		err := r.writer.GetContext(ctx, &u, `SELECT id, type, created_at FROM users WHERE id = ?`, id)
		if err == nil {
			return &u, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Persistence("get user", err)
		}
	} else {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	_, err := r.writer.ExecContext(ctx, `
		INSERT INTO users (id, type, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, UserTypeAnonymous, now)
	if err != nil {
		return nil, apperr.Persistence("create user", err)
	}
	return &User{ID: id, Type: UserTypeAnonymous, CreatedAt: now}, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, userID, id, task, model, workingDir string) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:         id,
		UserID:     userID,
		Status:     StatusPending,
		Task:       task,
		Model:      model,
		WorkingDir: workingDir,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := r.writer.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, status, task, model, working_dir, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.UserID, session.Status, session.Task, session.Model, session.WorkingDir, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, apperr.Persistence("create session", err)
	}
	return session, nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id, userID string) (*Session, error) {
	var s Session
	err := r.reader.GetContext(ctx, &s, `
		SELECT id, user_id, status, task, model, working_dir, created_at, updated_at,
		       completed_at, num_turns, duration_ms, total_cost_usd, cancel_requested, resume_id
		FROM sessions WHERE id = ? AND user_id = ?
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session", id)
	}
	if err != nil {
		return nil, apperr.Persistence("get session", err)
	}
	return &s, nil
}

func (r *SQLiteRepository) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*Session, int, error) {
	var total int
	if err := r.reader.GetContext(ctx, &total, `SELECT COUNT(1) FROM sessions WHERE user_id = ?`, userID); err != nil {
		return nil, 0, apperr.Persistence("count sessions", err)
	}

	var sessions []*Session
	err := r.reader.SelectContext(ctx, &sessions, `
		SELECT id, user_id, status, task, model, working_dir, created_at, updated_at,
		       completed_at, num_turns, duration_ms, total_cost_usd, cancel_requested, resume_id
		FROM sessions WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list sessions", err)
	}
	return sessions, total, nil
}

func (r *SQLiteRepository) UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
	}
	if update.Task != nil {
		sets = append(sets, "task = ?")
		args = append(args, *update.Task)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if update.NumTurns != nil {
		sets = append(sets, "num_turns = ?")
		args = append(args, *update.NumTurns)
	}
	if update.DurationMs != nil {
		sets = append(sets, "duration_ms = ?")
		args = append(args, *update.DurationMs)
	}
	if update.TotalCostUSD != nil {
		sets = append(sets, "total_cost_usd = ?")
		args = append(args, *update.TotalCostUSD)
	}
	if update.CancelRequested != nil {
		sets = append(sets, "cancel_requested = ?")
		args = append(args, sqlite.BoolToInt(*update.CancelRequested))
	}
	if update.ResumeID != nil {
		sets = append(sets, "resume_id = ?")
		args = append(args, *update.ResumeID)
	}

	query := fmt.Sprintf("UPDATE sessions SET %s WHERE id = ?", joinSets(sets))
	args = append(args, id)

	result, err := r.writer.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence("update session", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, apperr.NotFound("session", id)
	}

	var s Session
	err = r.writer.GetContext(ctx, &s, `
		SELECT id, user_id, status, task, model, working_dir, created_at, updated_at,
		       completed_at, num_turns, duration_ms, total_cost_usd, cancel_requested, resume_id
		FROM sessions WHERE id = ?
	`, id)
	if err != nil {
		return nil, apperr.Persistence("reload session after update", err)
	}
	return &s, nil
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

// RecordEvent persists a canonical event with retry and exponential
// backoff for transient (e.g. SQLITE_BUSY) errors, giving up after
// recordEventMaxAttempts and surfacing a PersistenceError.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, ev StoredEvent) error {
	var lastErr error
	for attempt := 0; attempt < recordEventMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := recordEventBaseDelay * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(delay) / 2))
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return apperr.Persistence("record event", ctx.Err())
			}
		}

		_, err := r.writer.ExecContext(ctx, `
			INSERT INTO events (session_id, sequence, kind, payload, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, ev.SessionID, ev.Sequence, ev.Kind, ev.Payload, ev.Timestamp)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return apperr.Persistence("record event", err)
		}
	}
	return apperr.Persistence(fmt.Sprintf("record event: exhausted %d attempts", recordEventMaxAttempts), lastErr)
}

func (r *SQLiteRepository) ListEvents(ctx context.Context, sessionID string, afterSequence uint64) ([]StoredEvent, error) {
	var events []StoredEvent
	err := r.reader.SelectContext(ctx, &events, `
		SELECT session_id, sequence, kind, payload, timestamp
		FROM events WHERE session_id = ? AND sequence > ?
		ORDER BY sequence ASC
	`, sessionID, afterSequence)
	if err != nil {
		return nil, apperr.Persistence("list events", err)
	}
	return events, nil
}

func (r *SQLiteRepository) CleanupStaleSessions(ctx context.Context) (int, error) {
	result, err := r.writer.ExecContext(ctx, `
		UPDATE sessions SET status = ?, updated_at = ? WHERE status = ?
	`, StatusFailed, time.Now().UTC(), StatusRunning)
	if err != nil {
		return 0, apperr.Persistence("cleanup stale sessions", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// isTransient reports whether a write error is worth retrying. SQLite
// reports lock contention as a string containing "database is locked" or
// "busy" regardless of driver error type, so a substring check is the
// portable signal here.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return contains(msg, "database is locked") || contains(msg, "busy")
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
