package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// uuidParse wraps uuid.Parse and rejects the nil UUID.
func uuidParse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, err
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("nil uuid")
	}
	return id, nil
}

// newSessionToken returns a cryptographically random token. 32 bytes → 64
// hex chars.
func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// hashToken is what the registry keeps instead of the raw token.
func hashToken(token string) [sha256.Size]byte {
	return sha256.Sum256([]byte(token))
}
