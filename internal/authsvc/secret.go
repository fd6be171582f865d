package authsvc

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/extractumio/agentum/internal/apperr"
)

const secretBytes = 32 // 256 bits

// loadOrGenerateSecret reads the signing secret from path, generating and
// persisting a fresh CSPRNG secret if the file does not yet exist. Unlike
// a derived-from-timestamp placeholder, this never produces a guessable
// value and is stable across restarts once written.
func loadOrGenerateSecret(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		secret, decodeErr := hex.DecodeString(string(trimNewline(raw)))
		if decodeErr != nil {
			return nil, apperr.Filesystem("decode jwt secret file", decodeErr)
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, apperr.Filesystem("read jwt secret file", err)
	}

	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, apperr.Internal("generate jwt secret", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, apperr.Filesystem("create jwt secret directory", err)
		}
	}
	encoded := hex.EncodeToString(secret)
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, apperr.Filesystem("write jwt secret file", err)
	}
	return secret, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
