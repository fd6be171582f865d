package supervisor

import (
	"encoding/json"

	"github.com/extractumio/agentum/internal/eventpb"
)

// childRecord is the wire shape written by the agent child process, one
// JSON object per line: {"type": "<kind>", "data": {...}}. The supervisor
// assigns no sequence or timestamp here — those are the hub's job once the
// event is accepted.
type childRecord struct {
	Type eventpb.Kind    `json:"type"`
	Data json.RawMessage `json:"data"`
}

// parseLine decodes one line of child output into a kind and typed
// payload. Malformed or unrecognized lines return an error; the caller
// logs and drops them without aborting the stream, per spec.
func parseLine(line []byte) (eventpb.Kind, any, error) {
	var rec childRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return "", nil, err
	}
	payload, err := eventpb.DecodePayload(rec.Type, rec.Data)
	if err != nil {
		return "", nil, err
	}
	return rec.Type, payload, nil
}
