package sessionfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "20260105_123456_deadbeef"

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(testID))
	assert.False(t, ValidID("not-a-session-id"))
	assert.False(t, ValidID("20260105_123456_DEADBEEF"))
	assert.False(t, ValidID("../../etc/passwd"))
}

func TestCreateAndDestroy(t *testing.T) {
	root := t.TempDir()
	fs, err := New(root, "")
	require.NoError(t, err)

	require.NoError(t, fs.Create(testID))
	assert.True(t, fs.Exists(testID))

	ws, err := fs.Workspace(testID)
	require.NoError(t, err)
	info, err := os.Stat(ws)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, fs.Destroy(testID))
	assert.False(t, fs.Exists(testID))
}

func TestResolveRejectsTraversal(t *testing.T) {
	fs, err := New(t.TempDir(), "")
	require.NoError(t, err)

	_, err = fs.Dir("../../../etc")
	assert.Error(t, err)
}

func TestWorkspaceFileRejectsTraversal(t *testing.T) {
	fs, err := New(t.TempDir(), "")
	require.NoError(t, err)
	require.NoError(t, fs.Create(testID))

	_, err = fs.WorkspaceFile(testID, "../../etc/passwd")
	assert.Error(t, err)

	_, err = fs.WorkspaceFile(testID, "/etc/passwd")
	assert.Error(t, err)

	p, err := fs.WorkspaceFile(testID, "notes/out.txt")
	require.NoError(t, err)
	ws, _ := fs.Workspace(testID)
	assert.Equal(t, filepath.Join(ws, "notes", "out.txt"), p)
}

func TestParseOutputMissingFileIsNotError(t *testing.T) {
	fs, err := New(t.TempDir(), "")
	require.NoError(t, err)
	require.NoError(t, fs.Create(testID))

	out, err := fs.ParseOutput(testID)
	require.NoError(t, err)
	assert.Equal(t, "", out.Status)
}

func TestParseOutputReadsYAML(t *testing.T) {
	fs, err := New(t.TempDir(), "")
	require.NoError(t, err)
	require.NoError(t, fs.Create(testID))

	outPath, err := fs.OutputFile(testID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(outPath, []byte("status: ok\noutput: done\n"), 0o644))

	out, err := fs.ParseOutput(testID)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "done", out.Output)
}
