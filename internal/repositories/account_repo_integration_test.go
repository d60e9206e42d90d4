//go:build integration

package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/turnstile/internal/database"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDatabase starts a Postgres container, applies migrations and returns a DB wrapper
func setupTestDatabase(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("turnstile"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, runMigrations(ctx, pool))

	return &database.DB{Pool: pool}
}

// runMigrations applies the embedded goose migrations through the pgx stdlib adapter
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func seedAccount(t *testing.T, repo *AccountRepository, email string) *models.Account {
	t.Helper()
	account, err := repo.Create(context.Background(), &models.Account{
		Email:         email,
		PasswordHash:  "$2a$04$abcdefghijklmnopqrstuuJ0pZcO8yCw7eYhJZ2QyQxZbq0n2F2yW",
		DisplayName:   "Seeded",
		Roles:         []string{models.RoleCustomer},
		IsActive:      true,
		EmailVerified: true,
	})
	require.NoError(t, err)
	return account
}

func TestAccountRepository_Integration(t *testing.T) {
	db := setupTestDatabase(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	t.Run("create and read back", func(t *testing.T) {
		created := seedAccount(t, repo, "user@x.com")

		assert.NotEmpty(t, created.ID)
		assert.Equal(t, int64(1), created.SessionVersion)
		assert.True(t, created.IsEligible())

		byEmail, err := repo.GetByEmail(ctx, "user@x.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		byID, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{models.RoleCustomer}, byID.Roles)
		assert.Nil(t, byID.LastLoginAt)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, err := repo.Create(ctx, &models.Account{Email: "user@x.com", IsActive: true})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := repo.GetByEmail(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = repo.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = repo.SetBanned(ctx, "00000000-0000-0000-0000-000000000000", true)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("account without password", func(t *testing.T) {
		created, err := repo.Create(ctx, &models.Account{Email: "social@x.com", IsActive: true, EmailVerified: true})
		require.NoError(t, err)
		assert.Empty(t, created.PasswordHash)

		ok, reason := created.Eligibility()
		assert.False(t, ok)
		assert.Equal(t, models.IneligibleNoPassword, reason)
	})

	t.Run("ban bumps session version, unban does not", func(t *testing.T) {
		account := seedAccount(t, repo, "ban@x.com")

		banned, err := repo.SetBanned(ctx, account.ID, true)
		require.NoError(t, err)
		assert.True(t, banned.IsBanned)
		assert.Equal(t, account.SessionVersion+1, banned.SessionVersion)

		unbanned, err := repo.SetBanned(ctx, account.ID, false)
		require.NoError(t, err)
		assert.False(t, unbanned.IsBanned)
		assert.Equal(t, banned.SessionVersion, unbanned.SessionVersion)
	})

	t.Run("deactivate and password change bump session version", func(t *testing.T) {
		account := seedAccount(t, repo, "state@x.com")

		inactive, err := repo.SetActive(ctx, account.ID, false)
		require.NoError(t, err)
		assert.Equal(t, int64(2), inactive.SessionVersion)

		active, err := repo.SetActive(ctx, account.ID, true)
		require.NoError(t, err)
		assert.Equal(t, int64(2), active.SessionVersion)

		rehashed, err := repo.SetPasswordHash(ctx, account.ID, "$2a$04$newhash")
		require.NoError(t, err)
		assert.Equal(t, int64(3), rehashed.SessionVersion)
		assert.Equal(t, "$2a$04$newhash", rehashed.PasswordHash)

		bumped, err := repo.IncrementSessionVersion(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), bumped.SessionVersion)
	})

	t.Run("email verification", func(t *testing.T) {
		created, err := repo.Create(ctx, &models.Account{Email: "verify@x.com", PasswordHash: "h", IsActive: true})
		require.NoError(t, err)
		assert.False(t, created.EmailVerified)

		verified, err := repo.SetEmailVerified(ctx, created.ID, true)
		require.NoError(t, err)
		assert.True(t, verified.EmailVerified)
		assert.Equal(t, created.SessionVersion, verified.SessionVersion)
	})

	t.Run("last login is last write wins", func(t *testing.T) {
		account := seedAccount(t, repo, "login@x.com")
		base := time.Now().UTC().Truncate(time.Microsecond)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, repo.UpdateLastLogin(ctx, account.ID, base.Add(time.Duration(i)*time.Second)))
			}(i)
		}
		wg.Wait()

		reloaded, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.LastLoginAt)
		assert.False(t, reloaded.LastLoginAt.Before(base))

		assert.ErrorIs(t, repo.UpdateLastLogin(ctx, "00000000-0000-0000-0000-000000000000", base), models.ErrNotFound)
	})

	t.Run("emails must be stored lowercase", func(t *testing.T) {
		_, err := repo.Create(ctx, &models.Account{Email: "Upper@X.com", IsActive: true})
		assert.ErrorIs(t, err, models.ErrBadRequest)
	})
}
