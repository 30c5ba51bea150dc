package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret")
	tok, err := m.Generate("user-1", time.Minute)
	require.NoError(t, err)

	sub, err := m.ValidateAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestValidateAccessTokenRejects(t *testing.T) {
	m := NewTokenManager("secret")
	sign := func(claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Minute).Unix()

	other, err := NewTokenManager("other").Generate("user-1", time.Minute)
	require.NoError(t, err)
	expired, err := m.Generate("user-1", -time.Minute)
	require.NoError(t, err)

	tokens := map[string]string{
		"wrong secret":  other,
		"expired":       expired,
		"refresh token": sign(jwt.MapClaims{"sub": "user-1", "exp": exp, "type": "refresh"}, jwt.SigningMethodHS256, []byte("secret")),
		"no subject":    sign(jwt.MapClaims{"exp": exp, "type": "access"}, jwt.SigningMethodHS256, []byte("secret")),
		"unsigned":      sign(jwt.MapClaims{"sub": "user-1", "exp": exp, "type": "access"}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType),
		"garbage":       "not.a.token",
	}
	for name, tok := range tokens {
		t.Run(name, func(t *testing.T) {
			_, err := m.ValidateAccessToken(tok)
			assert.Error(t, err)
		})
	}
}
