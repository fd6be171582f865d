// Package eventpb defines the canonical event record that flows from the
// agent execution supervisor through the event hub to persistence and to
// streaming subscribers. There is exactly one tagged-union record type;
// the payload shape is determined by Kind.
package eventpb

import (
	"encoding/json"
	"time"
)

// Kind identifies the shape of an event's payload.
type Kind string

const (
	KindAgentStart        Kind = "agent_start"
	KindUserMessage       Kind = "user_message"
	KindThinking          Kind = "thinking"
	KindMessage           Kind = "message"
	KindToolStart         Kind = "tool_start"
	KindToolComplete      Kind = "tool_complete"
	KindOutputDisplay     Kind = "output_display"
	KindAgentComplete     Kind = "agent_complete"
	KindMetricsUpdate     Kind = "metrics_update"
	KindError             Kind = "error"
	KindCancelled         Kind = "cancelled"
	KindConversationTurn  Kind = "conversation_turn"
	KindProfileSwitch     Kind = "profile_switch"
	KindHookTriggered     Kind = "hook_triggered"
	KindSessionConnect    Kind = "session_connect"
	KindSessionDisconnect Kind = "session_disconnect"
)

// terminalKinds signal end-of-stream to the hub: once one of these has been
// fanned out, no further events are delivered to any subscriber.
var terminalKinds = map[Kind]bool{
	KindAgentComplete: true,
	KindError:         true,
	KindCancelled:     true,
}

// Event is the single record type carried on the hub. Sequence and
// Timestamp are assigned by the hub at the moment the event is accepted,
// never by the producer.
type Event struct {
	Kind      Kind      `json:"-"`
	Sequence  uint64    `json:"-"`
	Timestamp time.Time `json:"-"`
	Payload   any       `json:"-"`
}

// wireEvent mirrors the documented wire schema: keys type, data, timestamp,
// sequence, in that stable order.
type wireEvent struct {
	Type      Kind      `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  uint64    `json:"sequence"`
}

// MarshalJSON renders the stable wire representation used both for SSE
// frames and for the persisted payload column.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		Type:      e.Kind,
		Data:      e.Payload,
		Timestamp: e.Timestamp,
		Sequence:  e.Sequence,
	})
}

// UnmarshalJSON restores an Event from its wire representation, decoding
// Data into the concrete payload type registered for Type.
func (e *Event) UnmarshalJSON(raw []byte) error {
	var w struct {
		Type      Kind            `json:"type"`
		Data      json.RawMessage `json:"data"`
		Timestamp time.Time       `json:"timestamp"`
		Sequence  uint64          `json:"sequence"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	payload, err := DecodePayload(w.Type, w.Data)
	if err != nil {
		return err
	}
	e.Kind = w.Type
	e.Sequence = w.Sequence
	e.Timestamp = w.Timestamp
	e.Payload = payload
	return nil
}

// FromStored reconstructs an Event from its persisted form: a bare kind
// string, sequence, timestamp, and the payload bytes as stored (the "data"
// portion only, not the full wire envelope — see hub.Writer). Used to
// replay the persisted prefix of a session's history in the same shape a
// live subscriber would have received it, over SSE or the history endpoint.
func FromStored(kind string, sequence uint64, timestamp time.Time, payload []byte) (Event, error) {
	k := Kind(kind)
	decoded, err := DecodePayload(k, payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: k, Sequence: sequence, Timestamp: timestamp, Payload: decoded}, nil
}

// Terminal reports whether this event's kind ends the stream.
func (e Event) Terminal() bool {
	return terminalKinds[e.Kind]
}

// Persistable reports whether this event belongs in the canonical,
// durable subset written by the event persistence writer. Every kind is
// persisted except partial message fragments.
func (e Event) Persistable() bool {
	if e.Kind != KindMessage {
		return true
	}
	if p, ok := e.Payload.(MessagePayload); ok {
		return !p.IsPartial
	}
	return true
}
