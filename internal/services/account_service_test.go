package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	pkgauth "github.com/BradenHooton/turnstile/pkg/auth"
	pkglogger "github.com/BradenHooton/turnstile/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAccountService(t *testing.T, seed ...*models.Account) (*AccountService, *MockAccountRepository, *ExistenceCache) {
	t.Helper()
	repo := NewMockAccountRepository(seed...)
	cache, _ := newTestCache(t, repo, time.Minute)
	logger := discardLogger()
	return NewAccountService(repo, cache, pkgauth.NewHasher(bcrypt.MinCost), logger, pkglogger.NewAuditLogger(logger)), repo, cache
}

// ============================================================================
// Create Tests
// ============================================================================

func TestAccountService_Create(t *testing.T) {
	svc, _, cache := newTestAccountService(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, NewAccount{
		Email:         "  New@X.com ",
		Password:      "Secret123!",
		DisplayName:   "New User",
		EmailVerified: true,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "new@x.com", account.Email)
	assert.Equal(t, []string{models.RoleCustomer}, account.Roles)
	assert.True(t, account.IsActive)
	assert.NotEqual(t, "Secret123!", account.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("Secret123!")))

	result, _ := cache.Lookup(ctx, "new@x.com")
	assert.Equal(t, CacheEligible, result)
}

func TestAccountService_Create_UnverifiedIsIneligible(t *testing.T) {
	svc, _, cache := newTestAccountService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, NewAccount{Email: "new@x.com", Password: "Secret123!"})
	require.NoError(t, err)

	result, _ := cache.Lookup(ctx, "new@x.com")
	assert.Equal(t, CacheIneligible, result)
}

func TestAccountService_Create_Errors(t *testing.T) {
	svc, _, _ := newTestAccountService(t, eligibleAccount())
	ctx := context.Background()

	_, err := svc.Create(ctx, NewAccount{Email: "user@x.com", Password: "Secret123!"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.Create(ctx, NewAccount{Email: "weak@x.com", Password: "password"})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.Create(ctx, NewAccount{Email: "   ", Password: "Secret123!"})
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

// ============================================================================
// State Change Tests
// ============================================================================

func TestAccountService_StateChanges(t *testing.T) {
	tests := []struct {
		name        string
		apply       func(svc *AccountService, ctx context.Context, id string) (*models.Account, error)
		wantVersion int64
		wantCache   CacheResult
	}{
		{"ban bumps version", func(svc *AccountService, ctx context.Context, id string) (*models.Account, error) {
			return svc.Ban(ctx, id, "admin")
		}, 2, CacheIneligible},
		{"unban keeps version", func(svc *AccountService, ctx context.Context, id string) (*models.Account, error) {
			return svc.Unban(ctx, id, "admin")
		}, 1, CacheEligible},
		{"deactivate bumps version", func(svc *AccountService, ctx context.Context, id string) (*models.Account, error) {
			return svc.Deactivate(ctx, id, "admin")
		}, 2, CacheIneligible},
		{"activate keeps version", func(svc *AccountService, ctx context.Context, id string) (*models.Account, error) {
			return svc.Activate(ctx, id, "admin")
		}, 1, CacheEligible},
		{"verify email", func(svc *AccountService, ctx context.Context, id string) (*models.Account, error) {
			return svc.MarkEmailVerified(ctx, id, "")
		}, 1, CacheEligible},
		{"set password bumps version", func(svc *AccountService, ctx context.Context, id string) (*models.Account, error) {
			return svc.SetPassword(ctx, id, "N3w-Secret!", "")
		}, 2, CacheEligible},
		{"force logout bumps version", func(svc *AccountService, ctx context.Context, id string) (*models.Account, error) {
			return svc.ForceLogout(ctx, id, "admin")
		}, 2, CacheEligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, cache := newTestAccountService(t, eligibleAccount())
			ctx := context.Background()

			account, err := tt.apply(svc, ctx, "acc-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, account.SessionVersion)

			result, err := cache.Lookup(ctx, "user@x.com")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCache, result)
		})
	}
}

func TestAccountService_SetPassword_RejectsWeak(t *testing.T) {
	svc, repo, _ := newTestAccountService(t, eligibleAccount())

	_, err := svc.SetPassword(context.Background(), "acc-1", "short", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	account, _ := repo.GetByID(context.Background(), "acc-1")
	assert.Equal(t, int64(1), account.SessionVersion)
}

func TestAccountService_NotFound(t *testing.T) {
	svc, _, _ := newTestAccountService(t)

	_, err := svc.Ban(context.Background(), "missing", "admin")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountService_StoreFailureLeavesCacheUntouched(t *testing.T) {
	svc, repo, cache := newTestAccountService(t, eligibleAccount())
	ctx := context.Background()
	require.NoError(t, cache.Store(ctx, "user@x.com", true))

	repo.SetBannedFunc = func(ctx context.Context, id string, banned bool) (*models.Account, error) {
		return nil, errors.New("connection reset")
	}

	_, err := svc.Ban(ctx, "acc-1", "admin")
	assert.ErrorIs(t, err, models.ErrInternalServer)

	result, _ := cache.Lookup(ctx, "user@x.com")
	assert.Equal(t, CacheEligible, result)
}
