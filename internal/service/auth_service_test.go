package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publicq/examguard/internal/config"
)

func newTestAuthService(t *testing.T) (*AuthService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: 4,
	}
	return NewAuthService(cfg, rdb), mr
}

func TestStudentTokenRoundTrip(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.GenerateStudentToken(ctx, "Alice@Example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeStudent, claims.TokenType)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)

	require.NoError(t, svc.ValidateStudentSession(ctx, claims.Email, claims.ID))
}

func TestSecondLoginRejectedWhileSessionActive(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.GenerateStudentToken(ctx, "bob@example.com")
	require.NoError(t, err)

	_, err = svc.GenerateStudentToken(ctx, "bob@example.com")
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)
}

func TestResetSessionAllowsNewLogin(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.GenerateStudentToken(ctx, "carol@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.ResetStudentSession(ctx, "carol@example.com"))

	_, err = svc.GenerateStudentToken(ctx, "carol@example.com")
	assert.NoError(t, err)
}

func TestStaleTokenFailsSessionCheck(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	first, err := svc.GenerateStudentToken(ctx, "dan@example.com")
	require.NoError(t, err)
	firstClaims, err := svc.ValidateToken(first)
	require.NoError(t, err)

	// Reset then log in again: the first token's JTI no longer matches.
	require.NoError(t, svc.ResetStudentSession(ctx, "dan@example.com"))
	_, err = svc.GenerateStudentToken(ctx, "dan@example.com")
	require.NoError(t, err)

	assert.Error(t, svc.ValidateStudentSession(ctx, "dan@example.com", firstClaims.ID))
}

func TestAdminTokenCarriesID(t *testing.T) {
	svc, _ := newTestAuthService(t)

	token, err := svc.GenerateAdminToken(42, "Proctor@Example.com")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAdmin, claims.TokenType)
	assert.Equal(t, 42, claims.AdminID)
	assert.Equal(t, "proctor@example.com", claims.Email)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc, _ := newTestAuthService(t)
	other, _ := newTestAuthService(t)
	other.cfg.JWTSecret = "different-secret"

	token, err := other.GenerateAdminToken(1, "x@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	svc, _ := newTestAuthService(t)

	hash, err := svc.HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.NoError(t, svc.CheckPassword(hash, "hunter22"))
	assert.ErrorIs(t, svc.CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}
