package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-for-tests"
	testRefreshSecret = "refresh-secret-for-tests"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken(testAccessSecret, "user-1", "session-1", "admin", 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseAccessToken(token, testAccessSecret)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(testAccessSecret, "user-1", "session-1", "user", 15*time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "other-secret")
	assert.Error(t, err)
}

func TestAccessTokenExpired(t *testing.T) {
	token, err := GenerateAccessToken(testAccessSecret, "user-1", "session-1", "user", -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, testAccessSecret)
	assert.Error(t, err)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	token, err := GenerateRefreshToken(testRefreshSecret, "user-2", "session-9", 7*24*time.Hour)
	require.NoError(t, err)

	claims, err := ParseRefreshToken(token, testRefreshSecret)
	require.NoError(t, err)

	assert.Equal(t, "user-2", claims.UserID)
	assert.Equal(t, "session-9", claims.SessionID)
}

func TestSecretsAreNotInterchangeable(t *testing.T) {
	access, err := GenerateAccessToken(testAccessSecret, "user-1", "session-1", "user", time.Minute)
	require.NoError(t, err)
	refresh, err := GenerateRefreshToken(testRefreshSecret, "user-1", "session-1", time.Minute)
	require.NoError(t, err)

	_, err = ParseRefreshToken(access, testRefreshSecret)
	assert.Error(t, err, "access token must not verify as refresh token")

	_, err = ParseAccessToken(refresh, testAccessSecret)
	assert.Error(t, err, "refresh token must not verify as access token")
}

func TestHashTokenStable(t *testing.T) {
	first := HashToken("some-token")
	second := HashToken("some-token")
	other := HashToken("another-token")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, 32)
}
