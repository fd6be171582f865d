package authsvc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, duration time.Duration) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jwt.secret")
	svc, err := New(path, duration)
	require.NoError(t, err)
	return svc
}

func TestIssueAndValidateTokenRoundTrips(t *testing.T) {
	svc := newTestService(t, time.Hour)

	token, err := svc.IssueToken("user-123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	sub, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", sub)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestService(t, -time.Minute)

	token, err := svc.IssueToken("user-123")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(t, time.Hour)

	_, err := svc.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	svc := newTestService(t, time.Hour)
	other := newTestService(t, time.Hour)

	token, err := other.IssueToken("user-123")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestSecretPersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt.secret")
	first, err := New(path, time.Hour)
	require.NoError(t, err)

	token, err := first.IssueToken("user-123")
	require.NoError(t, err)

	second, err := New(path, time.Hour)
	require.NoError(t, err)

	sub, err := second.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", sub)
}

func TestLoadOrGenerateSecretRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt.secret")
	require.NoError(t, os.WriteFile(path, []byte("not hex!!\n"), 0o600))

	_, err := New(path, time.Hour)
	assert.Error(t, err)
}
