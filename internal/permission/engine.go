package permission

import "sync"

// Decision is the verdict for one tool_call query.
type Decision struct {
	Allowed   bool
	Interrupt bool
}

// Engine evaluates is_allowed/needs_confirmation queries against a loaded
// Profile in the fixed decision order: disabled -> pre_approved -> deny
// scan -> allow scan -> default deny. Denials are counted per session per
// tool-call fingerprint; once a session crosses denialThreshold for the
// same fingerprint, the next denial for it carries Interrupt = true so the
// agent host can abort a stuck retry loop.
//
// Mirrors the teacher's Checker: a mutex-guarded map keyed by session,
// swapped here for denial counts instead of approval state.
type Engine struct {
	mu              sync.Mutex
	profile         *Profile
	denialThreshold int
	denials         map[string]map[string]int // sessionID -> fingerprint -> count
}

// NewEngine constructs an Engine over profile. denialThreshold <= 0
// disables the interrupt side effect entirely.
func NewEngine(profile *Profile, denialThreshold int) *Engine {
	return &Engine{
		profile:         profile,
		denialThreshold: denialThreshold,
		denials:         make(map[string]map[string]int),
	}
}

// SetProfile swaps the active profile, supporting hot reload.
func (e *Engine) SetProfile(profile *Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profile = profile
}

// IsAllowed evaluates tool_call under the session's workspace and fixed
// decision order. Any fail-closed condition (malformed pattern, exception)
// results in deny rather than a propagated error, per spec.
func (e *Engine) IsAllowed(sessionID, toolCall, workspace string) Decision {
	e.mu.Lock()
	profile := e.profile
	e.mu.Unlock()

	name := toolName(toolCall)

	if contains(profile.Disabled, name) {
		return e.deny(sessionID, toolCall)
	}
	if contains(profile.PreApproved, name) {
		return Decision{Allowed: true}
	}
	for _, pattern := range profile.Deny {
		if matchPattern(pattern, toolCall, workspace) {
			return e.deny(sessionID, toolCall)
		}
	}
	for _, pattern := range profile.Allow {
		if matchPattern(pattern, toolCall, workspace) {
			return Decision{Allowed: true}
		}
	}
	return e.deny(sessionID, toolCall)
}

// NeedsConfirmation reports whether tool_call's tool-name prefix is in the
// permission_checked category.
func (e *Engine) NeedsConfirmation(toolCall string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return contains(e.profile.PermissionChecked, toolName(toolCall))
}

// deny records a denial against sessionID's per-fingerprint counter and
// returns a Decision, escalating to Interrupt once the threshold is
// crossed.
func (e *Engine) deny(sessionID, toolCall string) Decision {
	if e.denialThreshold <= 0 {
		return Decision{Allowed: false}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	counts, ok := e.denials[sessionID]
	if !ok {
		counts = make(map[string]int)
		e.denials[sessionID] = counts
	}
	counts[toolCall]++
	interrupt := counts[toolCall] >= e.denialThreshold
	return Decision{Allowed: false, Interrupt: interrupt}
}

// ClearSession discards denial bookkeeping for a finished session.
func (e *Engine) ClearSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.denials, sessionID)
}
