package enricher

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

const fingerprintPrefix = "fp_"

// Fingerprint derives an anonymous session id from the client IP and user
// agent. The salt rotates at midnight UTC, so the same visitor gets a new id
// every day and the raw IP cannot be recovered from stored events.
func Fingerprint(ip, userAgent string, at time.Time) string {
	salt := "bazaarly:" + at.UTC().Format("2006-01-02")
	sum := blake2b.Sum256([]byte(ip + "|" + userAgent + "|" + salt))
	return fingerprintPrefix + hex.EncodeToString(sum[:])[:16]
}
