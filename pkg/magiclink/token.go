package magiclink

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenPrefix marks raw magic link tokens so they are recognizable in
// support tickets and secret scanners without revealing anything.
const TokenPrefix = "mslk_"

// Token is one issuance row. The raw token is never persisted, only
// its hash.
type Token struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"user_id"`
	TokenHash          string     `json:"-"`
	ExpiresAt          time.Time  `json:"expires_at"`
	UsedAt             *time.Time `json:"used_at,omitempty"`
	RequestedFromIP    string     `json:"requested_from_ip,omitempty"`
	RequestedUserAgent string     `json:"requested_user_agent,omitempty"`
	UsedFromIP         string     `json:"used_from_ip,omitempty"`
	UsedUserAgent      string     `json:"used_user_agent,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Expired reports whether the token is past its expiry as of now
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// GenerateToken returns a new raw token: 32 bytes from crypto/rand,
// base64url without padding, with the mslk_ prefix.
func GenerateToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating magic link token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken derives the storage hash for a raw token. Lookups always
// go through the hash; the raw token is never compared directly.
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
