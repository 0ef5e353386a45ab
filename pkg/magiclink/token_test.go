package magiclink

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	// 32 bytes base64url without padding is 43 characters.
	assert.Len(t, token, len(TokenPrefix)+43)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")

	other, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestHashToken(t *testing.T) {
	hash := HashToken("mslk_example")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashToken("mslk_example"))
	assert.NotEqual(t, hash, HashToken("mslk_other"))
	assert.NotContains(t, hash, "mslk_example")
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := &Token{ExpiresAt: now.Add(15 * time.Minute)}

	assert.False(t, token.Expired(now))
	assert.False(t, token.Expired(now.Add(15*time.Minute)))
	assert.True(t, token.Expired(now.Add(15*time.Minute+time.Second)))
}
