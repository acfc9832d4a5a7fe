package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

func TestStaticAllowAll(t *testing.T) {
	ctx := context.Background()
	v := AllowAll()

	require.NoError(t, v.RequireAuthorized(ctx, "alice"))
	err := v.RequireAuthorized(ctx, "")
	require.True(t, errors.Is(err, contracts.ErrInvalidAddress))
}

func TestStaticAllowlist(t *testing.T) {
	ctx := context.Background()
	v := Allow("alice", "bob")

	require.NoError(t, v.RequireAuthorized(ctx, "alice"))
	err := v.RequireAuthorized(ctx, "mallory")
	require.True(t, errors.Is(err, contracts.ErrUnauthorized))
}

func signToken(t *testing.T, secret []byte, subject, issuer string) string {
	t.Helper()
	claims := PartyClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return raw
}

func TestJWTVerifierAcceptsMatchingProof(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret, "covenant-host")

	ctx := WithProof(context.Background(), signToken(t, secret, "alice", "covenant-host"))
	require.NoError(t, v.RequireAuthorized(ctx, "alice"))
}

func TestJWTVerifierRejectsWrongSubject(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret, "")

	ctx := WithProof(context.Background(), signToken(t, secret, "bob", ""))
	err := v.RequireAuthorized(ctx, "alice")
	require.True(t, errors.Is(err, contracts.ErrUnauthorized))
}

func TestJWTVerifierRejectsBadSignature(t *testing.T) {
	v := NewJWTVerifier([]byte("right-secret"), "")

	ctx := WithProof(context.Background(), signToken(t, []byte("wrong-secret"), "alice", ""))
	err := v.RequireAuthorized(ctx, "alice")
	require.True(t, errors.Is(err, contracts.ErrUnauthorized))
}

func TestJWTVerifierNoProofs(t *testing.T) {
	v := NewJWTVerifier([]byte("secret"), "")
	err := v.RequireAuthorized(context.Background(), "alice")
	require.True(t, errors.Is(err, contracts.ErrUnauthorized))
}

func TestJWTVerifierStackedProofs(t *testing.T) {
	secret := []byte("secret")
	v := NewJWTVerifier(secret, "")

	ctx := WithProof(context.Background(), signToken(t, secret, "alice", ""))
	ctx = WithProof(ctx, signToken(t, secret, "bob", ""))

	require.NoError(t, v.RequireAuthorized(ctx, "alice"))
	require.NoError(t, v.RequireAuthorized(ctx, "bob"))
}
