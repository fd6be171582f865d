package store

import "context"

// Repository is the metadata store's contract: durable, indexed storage
// for users, sessions, and the canonical event subset.
type Repository interface {
	// GetOrCreateUser returns the user with the given id, creating it as an
	// anonymous identity if it does not yet exist. An empty id allocates a
	// fresh one.
	GetOrCreateUser(ctx context.Context, id string) (*User, error)

	// CreateSession inserts a new session row in status pending.
	CreateSession(ctx context.Context, userID, id, task, model, workingDir string) (*Session, error)

	// GetSession returns the session only if owned by userID; a session
	// that exists but belongs to a different user returns the same
	// not-found result as one that does not exist, to prevent enumeration.
	GetSession(ctx context.Context, id, userID string) (*Session, error)

	// ListSessions returns sessions owned by userID, newest first, along
	// with the total count ignoring limit/offset.
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]*Session, int, error)

	// UpdateSession applies a partial update and returns the post-image.
	UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error)

	// RecordEvent persists one canonical event, retrying transient errors
	// with exponential backoff up to a bounded number of attempts.
	RecordEvent(ctx context.Context, ev StoredEvent) error

	// ListEvents returns persisted events for a session with sequence >
	// afterSequence, ordered ascending, for replay.
	ListEvents(ctx context.Context, sessionID string, afterSequence uint64) ([]StoredEvent, error)

	// CleanupStaleSessions transitions every row still in status running to
	// failed; called once at service startup since no supervisor can exist
	// across a restart.
	CleanupStaleSessions(ctx context.Context) (int, error)

	Close() error
}
