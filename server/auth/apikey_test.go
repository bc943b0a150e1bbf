package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "mn_"))
	assert.Len(t, key, len("mn_")+48)

	other, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestHashAndVerify(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)

	hash := HashAPIKey(key)
	assert.Len(t, hash, 64)
	assert.True(t, VerifyAPIKey(key, hash))
	assert.False(t, VerifyAPIKey(key+"x", hash))
	assert.False(t, VerifyAPIKey("", hash))
}
