package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, subject string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestHMACVerifierAcceptsValidToken(t *testing.T) {
	secret := []byte("test-signing-secret")
	v := NewHMACVerifier(secret)
	token := signToken(t, secret, "user-1", time.Now().Add(time.Hour))

	ok, err := v.Verify(context.Background(), "user-1", token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHMACVerifierRejectsSubjectMismatch(t *testing.T) {
	secret := []byte("test-signing-secret")
	v := NewHMACVerifier(secret)
	token := signToken(t, secret, "user-1", time.Now().Add(time.Hour))

	ok, err := v.Verify(context.Background(), "someone-else", token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHMACVerifierRejectsWrongSecret(t *testing.T) {
	v := NewHMACVerifier([]byte("the-real-secret"))
	token := signToken(t, []byte("a-different-secret"), "user-1", time.Now().Add(time.Hour))

	ok, err := v.Verify(context.Background(), "user-1", token)
	require.NoError(t, err, "a bad signature is a rejection, not a verifier failure")
	assert.False(t, ok)
}

func TestHMACVerifierRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-signing-secret")
	v := NewHMACVerifier(secret)
	token := signToken(t, secret, "user-1", time.Now().Add(-time.Minute))

	ok, err := v.Verify(context.Background(), "user-1", token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHMACVerifierRejectsGarbageToken(t *testing.T) {
	v := NewHMACVerifier([]byte("test-signing-secret"))

	ok, err := v.Verify(context.Background(), "user-1", "not.a.jwt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHMACVerifierWithoutSecretErrors(t *testing.T) {
	v := NewHMACVerifier(nil)

	_, err := v.Verify(context.Background(), "user-1", "anything")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestHMACVerifierSetSecretSwapsKey(t *testing.T) {
	oldSecret := []byte("old-secret")
	newSecret := []byte("new-secret")
	v := NewHMACVerifier(oldSecret)
	oldToken := signToken(t, oldSecret, "user-1", time.Now().Add(time.Hour))
	newToken := signToken(t, newSecret, "user-1", time.Now().Add(time.Hour))

	ok, err := v.Verify(context.Background(), "user-1", oldToken)
	require.NoError(t, err)
	require.True(t, ok)

	v.SetSecret(newSecret)

	ok, err = v.Verify(context.Background(), "user-1", oldToken)
	require.NoError(t, err)
	assert.False(t, ok, "tokens signed with the rotated-out key are rejected")

	ok, err = v.Verify(context.Background(), "user-1", newToken)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{"user-1": "token-1"}

	ok, err := v.Verify(context.Background(), "user-1", "token-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), "user-1", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Verify(context.Background(), "unknown", "token-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
