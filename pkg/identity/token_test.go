package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(testSecret, "", time.Hour)
	require.NoError(t, err)
	return issuer
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)
	ident := &Identity{
		ID:          "u1",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Claims:      Claims{Role: "admin", OrganizationID: "org1", TeamID: "t1"},
	}

	token, expires, err := issuer.Issue(ident)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	got, err := issuer.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, ident.ID, got.ID)
	assert.Equal(t, ident.Email, got.Email)
	assert.Equal(t, ident.DisplayName, got.DisplayName)
	assert.Equal(t, ident.Claims, got.Claims)
}

func TestTokenIssuerRejects(t *testing.T) {
	issuer := newTestIssuer(t)
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		_, err := issuer.Verify(ctx, "  ")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Verify(ctx, "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenIssuer([]byte("ffffffffffffffffffffffffffffffff"), "", time.Hour)
		require.NoError(t, err)
		token, _, err := other.Issue(&Identity{ID: "u1"})
		require.NoError(t, err)
		_, err = issuer.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewTokenIssuer(testSecret, "someone-else", time.Hour)
		require.NoError(t, err)
		token, _, err := other.Issue(&Identity{ID: "u1"})
		require.NoError(t, err)
		_, err = issuer.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("expired", func(t *testing.T) {
		past := newTestIssuer(t)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := past.Issue(&Identity{ID: "u1"})
		require.NoError(t, err)
		_, err = issuer.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrExpiredCredential)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("missing expiry", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:   DefaultIssuer,
			Subject:  "u1",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		}).SignedString(testSecret)
		require.NoError(t, err)
		_, err = issuer.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
}

func TestTokenIssuerIssueRequiresID(t *testing.T) {
	_, _, err := newTestIssuer(t).Issue(&Identity{})
	assert.Error(t, err)
}
