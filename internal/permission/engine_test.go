package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testProfile() *Profile {
	return &Profile{
		Disabled:          []string{"Danger"},
		PreApproved:       []string{"Read"},
		PermissionChecked: []string{"Write"},
		Deny:              []string{"Bash(rm -rf *)", "Bash(sudo *)"},
		Allow:             []string{"Bash(git *)", "Bash(*)", "Write({workspace}/**)"},
	}
}

func TestDecisionOrderDisabledWins(t *testing.T) {
	e := NewEngine(testProfile(), 0)
	d := e.IsAllowed("s1", "Danger(anything)", "/ws")
	assert.False(t, d.Allowed)
}

func TestDecisionOrderPreApprovedSkipsScan(t *testing.T) {
	e := NewEngine(testProfile(), 0)
	d := e.IsAllowed("s1", "Read(/etc/passwd)", "/ws")
	assert.True(t, d.Allowed)
}

func TestDenyBeatsBroadAllow(t *testing.T) {
	e := NewEngine(testProfile(), 0)
	// "Bash(*)" is in Allow and would match, but Deny is scanned first.
	d := e.IsAllowed("s1", "Bash(rm -rf build)", "/ws")
	assert.False(t, d.Allowed)
}

func TestAllowPatternMatches(t *testing.T) {
	e := NewEngine(testProfile(), 0)
	d := e.IsAllowed("s1", "Bash(git status)", "/ws")
	assert.True(t, d.Allowed)
}

func TestDefaultDenyForUnknownTool(t *testing.T) {
	e := NewEngine(testProfile(), 0)
	d := e.IsAllowed("s1", "Exec(whoami)", "/ws")
	assert.False(t, d.Allowed)
}

func TestWorkspacePlaceholderSubstitution(t *testing.T) {
	e := NewEngine(testProfile(), 0)
	d := e.IsAllowed("s1", "Write(/ws/out/notes.txt)", "/ws")
	assert.True(t, d.Allowed)

	d2 := e.IsAllowed("s1", "Write(/other/out/notes.txt)", "/ws")
	assert.False(t, d2.Allowed)
}

func TestNeedsConfirmation(t *testing.T) {
	e := NewEngine(testProfile(), 0)
	assert.True(t, e.NeedsConfirmation("Write(./out.yaml)"))
	assert.False(t, e.NeedsConfirmation("Bash(git status)"))
}

func TestDenialThresholdTriggersInterrupt(t *testing.T) {
	e := NewEngine(testProfile(), 2)
	d1 := e.IsAllowed("s1", "Exec(whoami)", "/ws")
	assert.False(t, d1.Interrupt)
	d2 := e.IsAllowed("s1", "Exec(whoami)", "/ws")
	assert.True(t, d2.Interrupt)
}

func TestClearSessionResetsDenialCounts(t *testing.T) {
	e := NewEngine(testProfile(), 1)
	d1 := e.IsAllowed("s1", "Exec(whoami)", "/ws")
	assert.True(t, d1.Interrupt)

	e.ClearSession("s1")

	d2 := e.IsAllowed("s1", "Exec(whoami)", "/ws")
	assert.True(t, d2.Interrupt, "threshold of 1 should interrupt again immediately after reset")
}

func TestGlobstarCrossesSeparators(t *testing.T) {
	assert.True(t, matchPattern("Write({workspace}/**)", "Write(/ws/a/b/c.txt)", "/ws"))
	assert.False(t, matchPattern("Write({workspace}/*)", "Write(/ws/a/b/c.txt)", "/ws"))
}
