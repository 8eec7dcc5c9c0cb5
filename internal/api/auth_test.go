package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %d", tc.userId)
		})
	}
}

func TestOwnerId(t *testing.T) {
	assert.Nil(t, ownerId(context.Background()))

	id := ownerId(WithUserId(context.Background(), 9))
	require.NotNil(t, id)
	assert.Equal(t, 9, *id)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("s3cret")
	require.NoError(t, err)

	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, verifyPassword(hash, "s3cret"))
	assert.False(t, verifyPassword(hash, "wrong"))
}

func TestJwtRoundTrip(t *testing.T) {
	app := &CrabApp{signingKey: []byte("test-signing-key")}

	token, err := app.createJwtForSession(5, time.Hour)
	require.NoError(t, err)

	userId, err := app.extractUserIdFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, 5, userId)
}

func TestExtractUserIdFromToken_Invalid(t *testing.T) {
	app := &CrabApp{signingKey: []byte("test-signing-key")}
	other := &CrabApp{signingKey: []byte("other-key")}

	foreign, err := other.createJwtForSession(5, time.Hour)
	require.NoError(t, err)

	expired, err := app.createJwtForSession(5, -time.Hour)
	require.NoError(t, err)

	noClaim, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		expClaim: time.Now().Add(time.Hour).Unix(),
	}).SignedString(app.signingKey)
	require.NoError(t, err)

	tcases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", foreign},
		{"expired", expired},
		{"missing user id", noClaim},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := app.extractUserIdFromToken(tc.token)
			assert.Error(t, err)
		})
	}
}

func TestCreateJwtCookie(t *testing.T) {
	cookie := createJwtCookie("abc", time.Hour)

	assert.Equal(t, tokenCookieKey, cookie.Name)
	assert.Equal(t, "abc", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cookie.Expires, time.Minute)
}
