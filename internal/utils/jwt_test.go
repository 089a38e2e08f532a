package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New()
	token, err := GenerateToken("secret", id, "delivery", time.Hour)
	require.NoError(t, err)

	gotID, role, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "delivery", role)
}

func TestParseTokenRejects(t *testing.T) {
	id := uuid.New()

	expired, err := GenerateToken("secret", id, "customer", -time.Minute)
	require.NoError(t, err)
	_, _, err = ParseToken("secret", expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	valid, err := GenerateToken("secret", id, "customer", time.Hour)
	require.NoError(t, err)
	_, _, err = ParseToken("other-secret", valid)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, _, err = ParseToken("secret", "not-a-token")
	assert.Error(t, err)
}
