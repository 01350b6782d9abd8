package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPISecret(t *testing.T) {
	secret, hash, err := GenerateAPISecret()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, SecretPrefix+"_"))
	assert.Len(t, strings.TrimPrefix(secret, SecretPrefix+"_"), 43)
	assert.NotContains(t, hash, secret)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, BcryptCost, cost)

	assert.True(t, VerifyAPISecret(secret, hash))
}

func TestVerifyAPISecret(t *testing.T) {
	hash, err := HashAPISecret("jgw_known", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, VerifyAPISecret("jgw_known", hash))
	assert.False(t, VerifyAPISecret("jgw_other", hash))
	assert.False(t, VerifyAPISecret("", hash))
	assert.False(t, VerifyAPISecret("jgw_known", ""))
	assert.False(t, VerifyAPISecret("jgw_known", "not-a-bcrypt-hash"))
}
