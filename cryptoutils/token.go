package cryptoutils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
)

const tokenEntropyBytes = 32

// NewHeartbeatToken generates an unguessable bearer token for heartbeat
// authentication. Issued once at vault creation; only its hash is stored.
func NewHeartbeatToken() (string, error) {
	raw := make([]byte, tokenEntropyBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate heartbeat token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken returns the SHA-256 hash of a token, the only form the core
// persists.
func HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// VerifyToken compares a presented token against a stored hash in
// constant time.
func VerifyToken(token string, storedHash []byte) bool {
	sum := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(sum[:], storedHash) == 1
}
