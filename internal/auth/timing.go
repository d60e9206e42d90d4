package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// HashHeadroom is how many dummy comparisons must fit under the lower bound of
// the delay band
const HashHeadroom = 2

// PasswordHasher is the part of pkg/auth.Hasher the guard relies on
type PasswordHasher interface {
	NewDummyHash() (string, error)
	Verify(password, hash string) bool
}

// TimingGuard bounds and jitters the total latency of a login attempt so that
// response time does not reveal which branch the attempt took
type TimingGuard struct {
	minDelay  time.Duration
	maxDelay  time.Duration
	hasher    PasswordHasher
	dummyHash string
	hashCost  time.Duration
}

// NewTimingGuard creates a TimingGuard, precomputes the dummy hash with the
// hasher's cost and times one comparison against it. It fails if min > max or
// if minDelay is below HashHeadroom times the measured comparison.
func NewTimingGuard(minDelay, maxDelay time.Duration, hasher PasswordHasher) (*TimingGuard, error) {
	if minDelay < 0 || maxDelay < minDelay {
		return nil, fmt.Errorf("invalid delay band [%s, %s]", minDelay, maxDelay)
	}

	dummyHash, err := hasher.NewDummyHash()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	g := &TimingGuard{
		minDelay:  minDelay,
		maxDelay:  maxDelay,
		hasher:    hasher,
		dummyHash: dummyHash,
	}

	start := time.Now()
	g.DummyCompare("calibration")
	g.hashCost = time.Since(start)

	if minDelay < HashHeadroom*g.hashCost {
		return nil, fmt.Errorf("min delay %s is below %dx the measured hash comparison (%s); raise LOGIN_MIN_DELAY or lower PASSWORD_HASH_COST",
			minDelay, HashHeadroom, g.hashCost)
	}

	return g, nil
}

// HashCost returns the duration of the comparison timed at construction
func (g *TimingGuard) HashCost() time.Duration {
	return g.hashCost
}

// GuardedWindow is the latency target of a single attempt
type GuardedWindow struct {
	start  time.Time
	target time.Duration
}

// cryptoRandInt63n returns a secure random number between 0 and max (exclusive)
func cryptoRandInt63n(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int64(randomValue % uint64(max)), nil
}

// Start samples the target latency uniformly from [min, max]. Call it before any
// backend work so that work counts toward the target.
func (g *TimingGuard) Start() *GuardedWindow {
	target := g.maxDelay
	if jitter, err := cryptoRandInt63n(int64(g.maxDelay-g.minDelay) + 1); err == nil {
		target = g.minDelay + time.Duration(jitter)
	}

	return &GuardedWindow{start: time.Now(), target: target}
}

// Target returns the sampled latency
func (w *GuardedWindow) Target() time.Duration {
	return w.target
}

// Elapsed returns the time spent since Start
func (w *GuardedWindow) Elapsed() time.Duration {
	return time.Since(w.start)
}

// Wait blocks until the total elapsed time reaches the target. It returns early
// only when ctx is cancelled, and then returns ctx.Err().
func (w *GuardedWindow) Wait(ctx context.Context) error {
	remaining := w.target - time.Since(w.start)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DummyCompare runs a full hash comparison that can never succeed, so attempts
// for missing or ineligible accounts cost the same as a wrong password
func (g *TimingGuard) DummyCompare(password string) {
	_ = g.hasher.Verify(password, g.dummyHash)
}
