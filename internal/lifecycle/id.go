package lifecycle

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// generateID produces a session id matching sessionfs's documented shape:
// YYYYMMDD_HHMMSS_<8 hex chars>. The hex suffix disambiguates two sessions
// created within the same wall-clock second.
func generateID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return time.Now().UTC().Format("20060102_150405") + "_" + hex.EncodeToString(buf[:])
}
