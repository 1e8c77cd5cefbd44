package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestValidateSubject(t *testing.T) {
	v := NewValidator("topsecret")

	sub, err := v.Validate(signed(t, "topsecret", jwt.MapClaims{"sub": "user-1"}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	sub, err = v.Validate(signed(t, "topsecret", jwt.MapClaims{"user_id": "user-2"}))
	require.NoError(t, err)
	assert.Equal(t, "user-2", sub)
}

func TestValidateRejects(t *testing.T) {
	v := NewValidator("topsecret")

	_, err := v.Validate(signed(t, "wrongsecret", jwt.MapClaims{"sub": "user-1"}))
	assert.Error(t, err)

	_, err = v.Validate(signed(t, "topsecret", jwt.MapClaims{}))
	assert.Error(t, err)

	_, err = v.Validate("not-a-token")
	assert.Error(t, err)
}
