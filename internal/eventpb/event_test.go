package eventpb

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMarshalStableKeys(t *testing.T) {
	ev := Event{
		Kind:      KindToolStart,
		Sequence:  7,
		Timestamp: time.Date(2026, 1, 5, 12, 34, 56, 0, time.UTC),
		Payload: ToolStartPayload{
			ToolName:  "Read",
			ToolInput: map[string]any{"file_path": "./x.py"},
			ToolID:    "t_1",
		},
	}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "tool_start", decoded["type"])
	assert.Equal(t, float64(7), decoded["sequence"])
	assert.Contains(t, decoded, "data")
	assert.Contains(t, decoded, "timestamp")
}

func TestEventRoundTrip(t *testing.T) {
	ev := Event{
		Kind:      KindMessage,
		Sequence:  3,
		Timestamp: time.Now().UTC(),
		Payload:   MessagePayload{Text: "hello", IsPartial: false, FullText: "hello"},
	}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var restored Event
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, ev.Kind, restored.Kind)
	assert.Equal(t, ev.Sequence, restored.Sequence)
	payload, ok := restored.Payload.(MessagePayload)
	require.True(t, ok)
	assert.Equal(t, "hello", payload.FullText)
}

func TestPersistable(t *testing.T) {
	partial := Event{Kind: KindMessage, Payload: MessagePayload{Text: "a", IsPartial: true}}
	final := Event{Kind: KindMessage, Payload: MessagePayload{Text: "a", IsPartial: false, FullText: "a"}}
	other := Event{Kind: KindToolStart, Payload: ToolStartPayload{}}

	assert.False(t, partial.Persistable())
	assert.True(t, final.Persistable())
	assert.True(t, other.Persistable())
}

func TestTerminal(t *testing.T) {
	assert.True(t, Event{Kind: KindAgentComplete}.Terminal())
	assert.True(t, Event{Kind: KindError}.Terminal())
	assert.True(t, Event{Kind: KindCancelled}.Terminal())
	assert.False(t, Event{Kind: KindToolStart}.Terminal())
}

func TestDecodePayloadUnknownKind(t *testing.T) {
	_, err := DecodePayload(Kind("bogus"), json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestFromStoredReconstructsEvent(t *testing.T) {
	ts := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(ToolStartPayload{ToolName: "Read", ToolID: "t_1"})
	require.NoError(t, err)

	ev, err := FromStored(string(KindToolStart), 4, ts, raw)
	require.NoError(t, err)
	assert.Equal(t, KindToolStart, ev.Kind)
	assert.Equal(t, uint64(4), ev.Sequence)
	assert.Equal(t, ts, ev.Timestamp)
	payload, ok := ev.Payload.(ToolStartPayload)
	require.True(t, ok)
	assert.Equal(t, "Read", payload.ToolName)
}

func TestFromStoredRejectsUnknownKind(t *testing.T) {
	_, err := FromStored("bogus", 1, time.Now().UTC(), []byte(`{}`))
	assert.Error(t, err)
}
