package store

import "time"

// UserType tags the identity category of a User. Anonymous is the only
// value in v1.
type UserType string

const (
	UserTypeAnonymous UserType = "anonymous"
)

// User is a stable identity that owns zero or more sessions.
type User struct {
	ID        string    `db:"id" json:"id"`
	Type      UserType  `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SessionStatus is one of the five terminal/non-terminal session states.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusComplete  SessionStatus = "complete"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether status is one from which no further transition
// is legal.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Session is the metadata row backing one agent run.
type Session struct {
	ID              string        `db:"id" json:"id"`
	UserID          string        `db:"user_id" json:"user_id"`
	Status          SessionStatus `db:"status" json:"status"`
	Task            string        `db:"task" json:"task"`
	Model           string        `db:"model" json:"model"`
	WorkingDir      string        `db:"working_dir" json:"working_dir"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
	CompletedAt     *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	NumTurns        int           `db:"num_turns" json:"num_turns"`
	DurationMs      int64         `db:"duration_ms" json:"duration_ms"`
	TotalCostUSD    float64       `db:"total_cost_usd" json:"total_cost_usd"`
	CancelRequested bool          `db:"cancel_requested" json:"cancel_requested"`
	ResumeID        string        `db:"resume_id" json:"resume_id,omitempty"`
}

// SessionUpdate is a partial update applied by UpdateSession; nil fields
// are left unchanged.
type SessionUpdate struct {
	Status          *SessionStatus
	Task            *string
	CompletedAt     *time.Time
	NumTurns        *int
	DurationMs      *int64
	TotalCostUSD    *float64
	CancelRequested *bool
	ResumeID        *string
}

// StoredEvent is the persisted form of an eventpb.Event: the canonical
// subset (final messages and all non-message kinds), keyed by session and
// sequence.
type StoredEvent struct {
	SessionID string    `db:"session_id" json:"session_id"`
	Sequence  uint64    `db:"sequence" json:"sequence"`
	Kind      string    `db:"kind" json:"kind"`
	Payload   []byte    `db:"payload" json:"payload"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}
