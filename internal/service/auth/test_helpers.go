package auth

import (
	"time"

	"github.com/tasklight/tasklight-api/internal/config"
)

// DefaultJWTConfig returns a standard configuration for JWT authentication suitable for testing.
// This is the single source of truth for JWT test config.
func DefaultJWTConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:                   "test-jwt-secret-that-is-32-chars-long", // At least 32 chars
		TokenLifetimeMinutes:        60,
		RefreshTokenLifetimeMinutes: 1440,
	}
}

// NewTestJWTService creates a JWT service with the given secret, access token
// lifetime, and clock. The injectable clock makes expiry scenarios
// deterministic in tests.
func NewTestJWTService(secret string, tokenLifetime time.Duration, timeFunc func() time.Time) JWTService {
	svc := &hmacJWTService{
		signingKey:           []byte(secret),
		tokenLifetime:        tokenLifetime,
		refreshTokenLifetime: 24 * time.Hour,
		timeFunc:             time.Now,
		clockSkew:            0, // No leeway so expiry boundaries are exact in tests
	}
	if timeFunc != nil {
		svc.timeFunc = timeFunc
	}
	return svc
}
