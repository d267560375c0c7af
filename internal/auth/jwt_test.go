package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager(now time.Time) *JWTManager {
	m := NewJWTManager(JWTConfig{SecretKey: "test-secret", TTL: time.Hour, Issuer: "huddle"})
	m.now = func() time.Time { return now }
	return m
}

func TestGenerateAndValidate(t *testing.T) {
	m := newTestJWTManager(time.Now())

	token, err := m.Generate(42, "alice")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, int64(3600), m.TTL())
}

func TestValidateExpired(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	token, err := newTestJWTManager(issued).Generate(1, "alice")
	require.NoError(t, err)

	_, err = newTestJWTManager(time.Now()).Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRejects(t *testing.T) {
	m := newTestJWTManager(time.Now())

	other := NewJWTManager(JWTConfig{SecretKey: "other-secret", TTL: time.Hour, Issuer: "huddle"})
	wrongKey, err := other.Generate(1, "alice")
	require.NoError(t, err)

	foreign := NewJWTManager(JWTConfig{SecretKey: "test-secret", TTL: time.Hour, Issuer: "someone-else"})
	wrongIssuer, err := foreign.Generate(1, "alice")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", wrongKey},
		{"wrong issuer", wrongIssuer},
		{"unsigned", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestClaimsUserID(t *testing.T) {
	_, err := (&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}}).UserID()
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = (&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "0"}}).UserID()
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)
	assert.True(t, h.Verify("secret1", hash))
	assert.False(t, h.Verify("secret2", hash))

	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher(0).cost)
}
