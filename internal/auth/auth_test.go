package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise/internal/auth"
	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/errors"
	"github.com/pathwise/pathwise/internal/store"
)

const secret = "test-secret"

func makeVerifier(t *testing.T) *auth.Verifier {
	t.Helper()

	users := store.NewMemUsers()
	users.Put(&domain.User{ID: "u1", Name: "alice", Email: "alice@example.com"})

	return auth.NewVerifier(auth.Config{
		Secret: secret,
		Users:  users,
	})
}

func mintToken(t *testing.T, signingSecret, email string, expiresIn time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	})
	signed, err := token.SignedString([]byte(signingSecret))
	require.NoError(t, err)
	return signed
}

func TestVerifier_VerifyToken(t *testing.T) {
	v := makeVerifier(t)
	ctx := context.Background()

	t.Run("valid token resolves the user", func(t *testing.T) {
		u, err := v.VerifyToken(ctx, mintToken(t, secret, "alice@example.com", time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
		assert.Equal(t, "alice", u.Name)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := v.VerifyToken(ctx, "")
		require.Error(t, err)
		assert.Equal(t, errors.CodeUnauthenticated, errors.Convert(err).Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.VerifyToken(ctx, mintToken(t, "other-secret", "alice@example.com", time.Hour))
		require.Error(t, err)
		assert.Equal(t, errors.CodeUnauthenticated, errors.Convert(err).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		_, err := v.VerifyToken(ctx, mintToken(t, secret, "alice@example.com", -time.Hour))
		require.Error(t, err)
		assert.Equal(t, errors.CodeUnauthenticated, errors.Convert(err).Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.VerifyToken(ctx, "not.a.token")
		require.Error(t, err)
		assert.Equal(t, errors.CodeUnauthenticated, errors.Convert(err).Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := v.VerifyToken(ctx, mintToken(t, secret, "ghost@example.com", time.Hour))
		require.Error(t, err)
		assert.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
	})
}
