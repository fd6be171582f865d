package supervisor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/eventpb"
)

func testLogger() *logger.Logger {
	return logger.Default()
}

func TestRunCapturesEventsAndClassifiesComplete(t *testing.T) {
	script := `echo '{"type":"agent_start","data":{"session_id":"abc123","model":"sonnet","tools":[],"working_dir":"/tmp","task":"hi"}}'
echo 'not json, should be dropped'
echo '{"type":"agent_complete","data":{"status":"ok","num_turns":1,"duration_ms":5,"total_cost_usd":0.01,"usage":{},"model":"sonnet"}}'
`
	s := New(testLogger(), "sess-1")
	var kinds []eventpb.Kind
	outcome := s.Run(context.Background(), Params{
		Command: []string{"sh", "-c", script},
		Env:     os.Environ(),
	}, func(kind eventpb.Kind, payload any) {
		kinds = append(kinds, kind)
	})

	require.NoError(t, outcome.Err)
	assert.Equal(t, StatusComplete, outcome.Status)
	assert.Equal(t, "abc123", outcome.ResumeID)
	assert.Equal(t, []eventpb.Kind{eventpb.KindAgentStart, eventpb.KindAgentComplete}, kinds)
}

func TestRunClassifiesFailedOnNonZeroExit(t *testing.T) {
	s := New(testLogger(), "sess-2")
	outcome := s.Run(context.Background(), Params{
		Command: []string{"sh", "-c", "exit 7"},
		Env:     os.Environ(),
	}, func(eventpb.Kind, any) {})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Error(t, outcome.Err)
}

func TestCancelClassifiesCancelled(t *testing.T) {
	s := New(testLogger(), "sess-3")
	done := make(chan Outcome, 1)
	go func() {
		done <- s.Run(context.Background(), Params{
			Command:     []string{"sh", "-c", "sleep 30"},
			Env:         os.Environ(),
			GracePeriod: 200 * time.Millisecond,
		}, func(eventpb.Kind, any) {})
	}()

	time.Sleep(100 * time.Millisecond)
	s.Cancel()

	select {
	case outcome := <-done:
		assert.Equal(t, StatusCancelled, outcome.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not classify cancelled run in time")
	}
}
