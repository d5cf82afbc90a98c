package session_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusconnect/messaging/internal/chattest"
	"github.com/campusconnect/messaging/pkg/apperrors"
	"github.com/campusconnect/messaging/session"
)

func TestFromTokenReadsCampusClaims(t *testing.T) {
	token := chattest.MakeToken("u1", "Alice", "student")

	sess, err := session.FromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "Alice", sess.DisplayName)
	assert.Equal(t, "student", sess.Role)
	assert.Equal(t, token, sess.Token)
}

func TestFromTokenFallsBackToSubject(t *testing.T) {
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "u9",
		"name": "Dana",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	token, err := raw.SignedString([]byte("whatever"))
	require.NoError(t, err)

	sess, err := session.FromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u9", sess.UserID)
	assert.Equal(t, "Dana", sess.DisplayName)
}

func TestFromTokenEmpty(t *testing.T) {
	_, err := session.FromToken("")
	assert.ErrorIs(t, err, apperrors.ErrNoSession)
}

func TestFromTokenGarbage(t *testing.T) {
	_, err := session.FromToken("not.a.token")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestFromTokenWithoutIdentity(t *testing.T) {
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name": "Nobody",
	})
	token, err := raw.SignedString([]byte("whatever"))
	require.NoError(t, err)

	_, err = session.FromToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}
