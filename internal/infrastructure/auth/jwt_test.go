package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketsync/internal/infrastructure/config"
)

func newTestService(expiration time.Duration) *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars!!",
		AccessTokenExpiration: expiration,
		Issuer:                "marketsync-test",
	})
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := newTestService(time.Hour)

	issued, err := svc.GenerateToken("ops@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Actor)
	assert.Equal(t, "marketsync-test", claims.Issuer)
}

func TestJWTService_EmptyActor(t *testing.T) {
	svc := newTestService(time.Hour)

	_, err := svc.GenerateToken("")
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestJWTService_ExpiredToken(t *testing.T) {
	svc := newTestService(-time.Minute)

	issued, err := svc.GenerateToken("ops@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateToken(issued.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_WrongSecret(t *testing.T) {
	issued, err := newTestService(time.Hour).GenerateToken("ops@example.com")
	require.NoError(t, err)

	other := NewJWTService(config.JWTConfig{
		Secret:                "another-secret-key-also-32-chars!!!!",
		AccessTokenExpiration: time.Hour,
		Issuer:                "marketsync-test",
	})

	_, err = other.ValidateToken(issued.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_GarbageToken(t *testing.T) {
	svc := newTestService(time.Hour)

	_, err := svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
