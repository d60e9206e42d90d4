package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BradenHooton/turnstile/internal/kvstore"
)

const rateLimitKeyPrefix = "login:rl:"

// RateLimiter decides whether another login attempt for an email is allowed
type RateLimiter interface {
	Allow(ctx context.Context, normalizedEmail string) (bool, error)
}

// LoginRateLimiter is a fixed-window counter per email held in the shared store,
// so every replica sees the same count
type LoginRateLimiter struct {
	store  kvstore.Store
	max    int
	window time.Duration
}

// NewLoginRateLimiter creates a new LoginRateLimiter
func NewLoginRateLimiter(store kvstore.Store, max int, window time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{
		store:  store,
		max:    max,
		window: window,
	}
}

// Allow consumes one unit for normalizedEmail. It returns false with a non-nil
// error when the store cannot be reached; callers must treat that as a denial.
func (l *LoginRateLimiter) Allow(ctx context.Context, normalizedEmail string) (bool, error) {
	count, err := l.store.IncrWithTTL(ctx, hashedKey(rateLimitKeyPrefix, normalizedEmail), l.window)
	if err != nil {
		return false, fmt.Errorf("rate limit increment failed: %w", err)
	}
	return count <= int64(l.max), nil
}

// hashedKey keeps plaintext emails out of the shared store
func hashedKey(prefix, email string) string {
	sum := sha256.Sum256([]byte(email))
	return prefix + hex.EncodeToString(sum[:])
}
