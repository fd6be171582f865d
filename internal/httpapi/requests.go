package httpapi

import "github.com/extractumio/agentum/internal/store"

// TokenRequest is the body of POST /api/v1/auth/token. UserID is optional;
// an empty value allocates a fresh anonymous identity.
type TokenRequest struct {
	UserID string `json:"user_id"`
}

// TokenResponse carries the issued bearer token and its owner.
type TokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// RunSessionRequest is the body of POST /api/v1/sessions/run.
type RunSessionRequest struct {
	Task  string `json:"task" binding:"required"`
	Model string `json:"model"`
}

// TaskRequest is the body of POST /api/v1/sessions/{id}/task.
type TaskRequest struct {
	Task string `json:"task" binding:"required"`
}

// SessionResponse is the public snapshot of a session row.
type SessionResponse struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	Task            string  `json:"task"`
	Model           string  `json:"model"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	NumTurns        int     `json:"num_turns"`
	DurationMs      int64   `json:"duration_ms"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	CancelRequested bool    `json:"cancel_requested"`
}

// sessionResponse builds the wire response from a store row.
func sessionResponse(s *store.Session) SessionResponse {
	resp := SessionResponse{
		ID:              s.ID,
		Status:          string(s.Status),
		Task:            s.Task,
		Model:           s.Model,
		CreatedAt:       s.CreatedAt.Format(timeFormat),
		UpdatedAt:       s.UpdatedAt.Format(timeFormat),
		NumTurns:        s.NumTurns,
		DurationMs:      s.DurationMs,
		TotalCostUSD:    s.TotalCostUSD,
		CancelRequested: s.CancelRequested,
	}
	if s.CompletedAt != nil {
		formatted := s.CompletedAt.Format(timeFormat)
		resp.CompletedAt = &formatted
	}
	return resp
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// SessionListResponse is the paginated envelope for GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
}

// ResultResponse is the body of GET /api/v1/sessions/{id}/result.
type ResultResponse struct {
	Output      string   `json:"output"`
	Error       string   `json:"error"`
	Comments    string   `json:"comments"`
	ResultFiles []string `json:"result_files"`
	Status      string   `json:"status"`
	NumTurns    int      `json:"num_turns"`
	DurationMs  int64    `json:"duration_ms"`
}
