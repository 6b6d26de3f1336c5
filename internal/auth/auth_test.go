package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastelab/cupping-rooms/internal/domain"
)

const testSecret = "test-dev-secret"

func TestNewVerifier_RequiresKey(t *testing.T) {
	_, err := NewVerifier("", "", "")
	assert.Error(t, err)

	_, err = NewVerifier("not a pem", "", "")
	assert.Error(t, err)
}

func TestVerify_DevToken(t *testing.T) {
	v, err := NewVerifier("", testSecret, "")
	require.NoError(t, err)

	token, err := MintDevToken(testSecret, "user_123", "", time.Minute)
	require.NoError(t, err)

	sub, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user_123", sub)
}

func TestVerify_Rejects(t *testing.T) {
	v, err := NewVerifier("", testSecret, "https://issuer.test")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token func() string
	}{
		{"wrong secret", func() string {
			tok, _ := MintDevToken("other", "user_1", "https://issuer.test", time.Minute)
			return tok
		}},
		{"expired", func() string {
			tok, _ := MintDevToken(testSecret, "user_1", "https://issuer.test", -time.Minute)
			return tok
		}},
		{"wrong issuer", func() string {
			tok, _ := MintDevToken(testSecret, "user_1", "https://evil.test", time.Minute)
			return tok
		}},
		{"missing subject", func() string {
			tok, _ := MintDevToken(testSecret, "", "https://issuer.test", time.Minute)
			return tok
		}},
		{"garbage", func() string { return "abc.def.ghi" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token())
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestVerify_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	// single-line env form
	v, err := NewVerifier(strings.ReplaceAll(pemKey, "\n", `\n`), "", "")
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "user_rsa",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	sub, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user_rsa", sub)

	// HS256 tokens are refused when no dev secret is configured
	dev, err := MintDevToken(testSecret, "user_rsa", "", time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(dev)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
