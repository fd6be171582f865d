package eventpb

import (
	"encoding/json"
	"fmt"
)

// AgentStartPayload is emitted once per run, before any other event.
type AgentStartPayload struct {
	SessionID  string   `json:"session_id"`
	Model      string   `json:"model"`
	Tools      []string `json:"tools"`
	WorkingDir string   `json:"working_dir"`
	Task       string   `json:"task"`
}

// UserMessagePayload echoes the task text back onto the stream.
type UserMessagePayload struct {
	Text string `json:"text"`
}

// ThinkingPayload carries a chain-of-thought fragment.
type ThinkingPayload struct {
	Text string `json:"text"`
}

// MessagePayload carries either a streaming delta (IsPartial = true) or a
// finalized message (IsPartial = false, FullText populated).
type MessagePayload struct {
	Text      string `json:"text"`
	IsPartial bool   `json:"is_partial"`
	FullText  string `json:"full_text,omitempty"`
}

// ToolStartPayload announces a tool invocation before it runs.
type ToolStartPayload struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	ToolID    string         `json:"tool_id"`
}

// ToolCompletePayload reports the outcome of a tool invocation.
type ToolCompletePayload struct {
	ToolName   string `json:"tool_name"`
	ToolID     string `json:"tool_id"`
	Result     any    `json:"result"`
	DurationMs int64  `json:"duration_ms"`
	IsError    bool   `json:"is_error"`
}

// OutputDisplayPayload carries the agent's structured final output as the
// agent reports it in its output_display record.
type OutputDisplayPayload struct {
	Output      string   `json:"output"`
	Error       string   `json:"error"`
	Comments    string   `json:"comments"`
	ResultFiles []string `json:"result_files"`
	Status      string   `json:"status"`
}

// AgentCompletePayload is the terminal event for a successful run.
type AgentCompletePayload struct {
	Status       string         `json:"status"`
	NumTurns     int            `json:"num_turns"`
	DurationMs   int64          `json:"duration_ms"`
	TotalCostUSD float64        `json:"total_cost_usd"`
	Usage        map[string]any `json:"usage"`
	Model        string         `json:"model"`
}

// MetricsUpdatePayload is an incremental progress update, superseded by the
// terminal agent_complete event's totals.
type MetricsUpdatePayload struct {
	Turns        int     `json:"turns"`
	TokensIn     int64   `json:"tokens_in"`
	TokensOut    int64   `json:"tokens_out"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Model        string  `json:"model"`
}

// ErrorPayload is the terminal event for a failed run. ErrorType mirrors
// one of the apperr taxonomy codes (e.g. "TIMEOUT", "CHILD_CRASH").
type ErrorPayload struct {
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

// CancelledPayload is the terminal event for a caller-cancelled run.
// Resumable is true iff agent_start had already been observed, meaning a
// resume_id was captured.
type CancelledPayload struct {
	Message   string `json:"message"`
	Resumable bool   `json:"resumable"`
}

// ConversationTurnPayload summarizes one completed LLM turn.
type ConversationTurnPayload struct {
	TurnNumber      int      `json:"turn_number"`
	PromptPreview   string   `json:"prompt_preview"`
	ResponsePreview string   `json:"response_preview"`
	DurationMs      int64    `json:"duration_ms"`
	ToolsUsed       []string `json:"tools_used"`
}

// ProfileSwitchPayload records a mid-run change of permission profile.
type ProfileSwitchPayload struct {
	Profile string `json:"profile"`
}

// HookTriggeredPayload records a lifecycle hook firing (e.g. a pre-tool or
// post-turn script configured outside the agent itself).
type HookTriggeredPayload struct {
	HookName string         `json:"hook_name"`
	Details  map[string]any `json:"details,omitempty"`
}

// SessionConnectPayload and SessionDisconnectPayload record subscriber
// attach/detach for observability; they never affect hub sequencing.
type SessionConnectPayload struct {
	SubscriberID string `json:"subscriber_id"`
}

type SessionDisconnectPayload struct {
	SubscriberID string `json:"subscriber_id"`
	Reason       string `json:"reason,omitempty"`
}

// DecodePayload unmarshals raw JSON data into the concrete payload type
// registered for kind. Used both when restoring persisted events for
// replay and when the supervisor's child-record reader hands off a raw
// line to be converted into a typed Event.
func DecodePayload(kind Kind, raw json.RawMessage) (any, error) {
	var err error
	switch kind {
	case KindAgentStart:
		var p AgentStartPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindUserMessage:
		var p UserMessagePayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindThinking:
		var p ThinkingPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindMessage:
		var p MessagePayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindToolStart:
		var p ToolStartPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindToolComplete:
		var p ToolCompletePayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindOutputDisplay:
		var p OutputDisplayPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindAgentComplete:
		var p AgentCompletePayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindMetricsUpdate:
		var p MetricsUpdatePayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindError:
		var p ErrorPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindCancelled:
		var p CancelledPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindConversationTurn:
		var p ConversationTurnPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindProfileSwitch:
		var p ProfileSwitchPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindHookTriggered:
		var p HookTriggeredPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindSessionConnect:
		var p SessionConnectPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	case KindSessionDisconnect:
		var p SessionDisconnectPayload
		err = json.Unmarshal(raw, &p)
		return p, err
	default:
		return nil, fmt.Errorf("eventpb: unknown event kind %q", kind)
	}
}
