package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/turnstile/internal/kvstore"
	"github.com/BradenHooton/turnstile/internal/metrics"
	"github.com/BradenHooton/turnstile/internal/models"
	pkglogger "github.com/BradenHooton/turnstile/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const (
	existenceKeyPrefix = "login:eligible:"
	eligibleValue      = "1"
	ineligibleValue    = "0"
)

// CacheResult is the outcome of an existence cache lookup
type CacheResult int

const (
	CacheMiss CacheResult = iota
	CacheEligible
	CacheIneligible
)

func (r CacheResult) String() string {
	switch r {
	case CacheEligible:
		return "eligible"
	case CacheIneligible:
		return "ineligible"
	default:
		return "miss"
	}
}

// AccountLookup is the read side of the account store used by the cache
type AccountLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// ExistenceCache stores a short-lived eligibility verdict per email so most
// attempts against unknown or blocked accounts never reach the account store.
// The account store stays authoritative; the cache only ever short-circuits to
// a rejection.
type ExistenceCache struct {
	store         kvstore.Store
	accounts      AccountLookup
	ttl           time.Duration
	lookupTimeout time.Duration
	group         singleflight.Group
	metrics       metrics.Recorder
	logger        *slog.Logger
}

// NewExistenceCache creates a new ExistenceCache. ttl is truncated to whole seconds.
func NewExistenceCache(store kvstore.Store, accounts AccountLookup, ttl, lookupTimeout time.Duration, recorder metrics.Recorder, logger *slog.Logger) *ExistenceCache {
	ttl = ttl.Truncate(time.Second)
	if ttl < time.Second {
		ttl = time.Second
	}
	return &ExistenceCache{
		store:         store,
		accounts:      accounts,
		ttl:           ttl,
		lookupTimeout: lookupTimeout,
		metrics:       recorder,
		logger:        logger,
	}
}

// Lookup returns the cached verdict for email. A read error is returned alongside
// CacheMiss so the caller falls back to the account store.
func (c *ExistenceCache) Lookup(ctx context.Context, email string) (CacheResult, error) {
	value, err := c.store.Get(ctx, hashedKey(existenceKeyPrefix, email))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			c.metrics.RecordCacheLookup(metrics.CacheMiss)
			return CacheMiss, nil
		}
		c.metrics.RecordCacheLookup(metrics.CacheError)
		c.metrics.RecordBackendError("redis")
		return CacheMiss, fmt.Errorf("existence cache read failed: %w", err)
	}

	c.metrics.RecordCacheLookup(metrics.CacheHit)
	switch value {
	case eligibleValue:
		return CacheEligible, nil
	case ineligibleValue:
		return CacheIneligible, nil
	default:
		// Unknown payloads are treated as absent
		return CacheMiss, nil
	}
}

// Store writes the verdict for email with the configured TTL
func (c *ExistenceCache) Store(ctx context.Context, email string, eligible bool) error {
	value := ineligibleValue
	if eligible {
		value = eligibleValue
	}

	if err := c.store.SetWithTTL(ctx, hashedKey(existenceKeyPrefix, email), value, c.ttl); err != nil {
		c.metrics.RecordCacheLookup(metrics.CacheWriteErr)
		c.logger.Warn("existence cache write failed",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("error", err.Error()))
		return fmt.Errorf("existence cache write failed: %w", err)
	}
	return nil
}

// Refresh recomputes the verdict from an authoritative record and overwrites the entry.
// When the write fails the entry is deleted so no stale verdict outlives the change.
func (c *ExistenceCache) Refresh(ctx context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("cannot refresh cache without an account")
	}

	email := NormalizeEmail(account.Email)
	err := c.Store(ctx, email, account.IsEligible())
	if err == nil {
		return nil
	}

	if delErr := c.store.Delete(ctx, hashedKey(existenceKeyPrefix, email)); delErr != nil {
		c.logger.Error("existence cache invalidation failed",
			slog.String("user_id", account.ID),
			slog.String("error", delErr.Error()))
	}
	return err
}

// Resolve reads the account store for email, records the verdict and returns the
// record. Concurrent calls for the same email share one store read. A missing
// account returns models.ErrNotFound and is cached as ineligible.
func (c *ExistenceCache) Resolve(ctx context.Context, email string) (*models.Account, error) {
	ch := c.group.DoChan(email, func() (interface{}, error) {
		// Detached from the first caller so its cancellation does not fail the others
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
		defer cancel()

		account, err := c.accounts.GetByEmail(lookupCtx, email)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				_ = c.Store(lookupCtx, email, false)
			}
			return nil, err
		}

		_ = c.Store(lookupCtx, email, account.IsEligible())
		return account, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Each caller gets its own copy of the shared record
		account := *res.Val.(*models.Account)
		account.Roles = append([]string(nil), account.Roles...)
		return &account, nil
	}
}
