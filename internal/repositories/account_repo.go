package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/turnstile/internal/database"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, email, password_hash, display_name, gender, preference, roles,
	is_banned, is_active, email_verified, session_version, last_login_at, created_at, updated_at`

// AccountRepository is the Postgres-backed account store
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning account rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow handles nullable fields and populates an Account from a database row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var passwordHash *string

	err := scanner.Scan(
		&account.ID, &account.Email, &passwordHash, &account.DisplayName,
		&account.Gender, &account.Preference, &account.Roles,
		&account.IsBanned, &account.IsActive, &account.EmailVerified,
		&account.SessionVersion, &account.LastLoginAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail looks up a normalized (lowercase) email
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	roles := account.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleCustomer}
	}

	query := `
		INSERT INTO accounts (email, password_hash, display_name, gender, preference, roles,
			is_banned, is_active, email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.pool.QueryRow(ctx, query,
		account.Email, passwordHash, account.DisplayName, account.Gender, account.Preference, roles,
		account.IsBanned, account.IsActive, account.EmailVerified,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return created, nil
}

// UpdateLastLogin records a successful login. Concurrent logins race and the last
// write wins.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE accounts SET last_login_at = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// IncrementSessionVersion invalidates every session issued for the account
func (r *AccountRepository) IncrementSessionVersion(ctx context.Context, id string) (*models.Account, error) {
	query := `
		UPDATE accounts SET session_version = session_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

// SetBanned bans or unbans the account; banning also bumps the session version
func (r *AccountRepository) SetBanned(ctx context.Context, id string, banned bool) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET is_banned = $2,
			session_version = session_version + CASE WHEN $2 THEN 1 ELSE 0 END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, banned))
}

// SetActive activates or deactivates the account; deactivating bumps the session version
func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET is_active = $2,
			session_version = session_version + CASE WHEN $2 THEN 0 ELSE 1 END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, active))
}

func (r *AccountRepository) SetEmailVerified(ctx context.Context, id string, verified bool) (*models.Account, error) {
	query := `
		UPDATE accounts SET email_verified = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, verified))
}

// SetPasswordHash replaces the password hash and bumps the session version
func (r *AccountRepository) SetPasswordHash(ctx context.Context, id, hash string) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET password_hash = $2, session_version = session_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, hash))
}
