package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	pkgauth "github.com/BradenHooton/turnstile/pkg/auth"
	"github.com/google/uuid"
)

// MockAccountRepository implements AccountRepository for testing. Func fields
// override the in-memory behaviour.
type MockAccountRepository struct {
	GetByIDFunc                 func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc              func(ctx context.Context, email string) (*models.Account, error)
	CreateFunc                  func(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateLastLoginFunc         func(ctx context.Context, id string, at time.Time) error
	IncrementSessionVersionFunc func(ctx context.Context, id string) (*models.Account, error)
	SetBannedFunc               func(ctx context.Context, id string, banned bool) (*models.Account, error)
	SetActiveFunc               func(ctx context.Context, id string, active bool) (*models.Account, error)
	SetEmailVerifiedFunc        func(ctx context.Context, id string, verified bool) (*models.Account, error)
	SetPasswordHashFunc         func(ctx context.Context, id, hash string) (*models.Account, error)

	mu          sync.Mutex
	accounts    map[string]*models.Account
	emailReads  atomic.Int64
	lastLoginAt map[string]time.Time
}

// NewMockAccountRepository creates a mock seeded with accounts
func NewMockAccountRepository(accounts ...*models.Account) *MockAccountRepository {
	m := &MockAccountRepository{
		accounts:    make(map[string]*models.Account),
		lastLoginAt: make(map[string]time.Time),
	}
	for _, a := range accounts {
		m.accounts[a.ID] = cloneAccount(a)
	}
	return m
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.Roles = append([]string(nil), a.Roles...)
	return &c
}

// EmailReads returns how many times GetByEmail was called
func (m *MockAccountRepository) EmailReads() int64 {
	return m.emailReads.Load()
}

// LastLogin returns the recorded last-login time for id
func (m *MockAccountRepository) LastLogin(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.lastLoginAt[id]
	return at, ok
}

// Mutate edits a stored account directly, bypassing AccountService
func (m *MockAccountRepository) Mutate(id string, fn func(a *models.Account)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		fn(a)
	}
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return cloneAccount(a), nil
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.emailReads.Add(1)
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, account.Email) {
			return nil, models.ErrConflict
		}
	}
	created := cloneAccount(account)
	created.ID = uuid.New().String()
	created.SessionVersion = 1
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	m.accounts[created.ID] = created
	return cloneAccount(created), nil
}

func (m *MockAccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(ctx, id, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.LastLoginAt = &at
	m.lastLoginAt[id] = at
	return nil
}

func (m *MockAccountRepository) IncrementSessionVersion(ctx context.Context, id string) (*models.Account, error) {
	if m.IncrementSessionVersionFunc != nil {
		return m.IncrementSessionVersionFunc(ctx, id)
	}
	return m.update(id, func(a *models.Account) { a.SessionVersion++ })
}

func (m *MockAccountRepository) SetBanned(ctx context.Context, id string, banned bool) (*models.Account, error) {
	if m.SetBannedFunc != nil {
		return m.SetBannedFunc(ctx, id, banned)
	}
	return m.update(id, func(a *models.Account) {
		a.IsBanned = banned
		if banned {
			a.SessionVersion++
		}
	})
}

func (m *MockAccountRepository) SetActive(ctx context.Context, id string, active bool) (*models.Account, error) {
	if m.SetActiveFunc != nil {
		return m.SetActiveFunc(ctx, id, active)
	}
	return m.update(id, func(a *models.Account) {
		a.IsActive = active
		if !active {
			a.SessionVersion++
		}
	})
}

func (m *MockAccountRepository) SetEmailVerified(ctx context.Context, id string, verified bool) (*models.Account, error) {
	if m.SetEmailVerifiedFunc != nil {
		return m.SetEmailVerifiedFunc(ctx, id, verified)
	}
	return m.update(id, func(a *models.Account) { a.EmailVerified = verified })
}

func (m *MockAccountRepository) SetPasswordHash(ctx context.Context, id, hash string) (*models.Account, error) {
	if m.SetPasswordHashFunc != nil {
		return m.SetPasswordHashFunc(ctx, id, hash)
	}
	return m.update(id, func(a *models.Account) {
		a.PasswordHash = hash
		a.SessionVersion++
	})
}

func (m *MockAccountRepository) update(id string, fn func(a *models.Account)) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return cloneAccount(a), nil
}

// CountingVerifier wraps a Hasher and counts real verifications
type CountingVerifier struct {
	hasher *pkgauth.Hasher
	calls  atomic.Int64
}

func (v *CountingVerifier) Verify(password, hash string) bool {
	v.calls.Add(1)
	return v.hasher.Verify(password, hash)
}

// Calls returns the number of Verify calls
func (v *CountingVerifier) Calls() int64 {
	return v.calls.Load()
}

// CountingHasher wraps a Hasher for the timing guard and counts comparisons
type CountingHasher struct {
	hasher *pkgauth.Hasher
	calls  atomic.Int64
}

func (h *CountingHasher) NewDummyHash() (string, error) {
	return h.hasher.NewDummyHash()
}

func (h *CountingHasher) Verify(password, hash string) bool {
	h.calls.Add(1)
	return h.hasher.Verify(password, hash)
}

// Calls returns the number of comparisons, including the one timed when the guard is built
func (h *CountingHasher) Calls() int64 {
	return h.calls.Load()
}

// RecordingAlerter captures alerts
type RecordingAlerter struct {
	mu         sync.Mutex
	subsystems []string
}

func (a *RecordingAlerter) Alert(ctx context.Context, subsystem string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subsystems = append(a.subsystems, subsystem)
}

// Subsystems returns the alerted subsystems in order
func (a *RecordingAlerter) Subsystems() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.subsystems...)
}

// RecordingMetrics captures authorize outcomes
type RecordingMetrics struct {
	mu            sync.Mutex
	outcomes      []string
	durations     []time.Duration
	backendErrors []string
	rateLimited   int
}

func (r *RecordingMetrics) RecordAuthorize(outcome string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	r.durations = append(r.durations, duration)
}

func (r *RecordingMetrics) RecordCacheLookup(string) {}

func (r *RecordingMetrics) RecordBackendError(backend string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backendErrors = append(r.backendErrors, backend)
}

func (r *RecordingMetrics) RecordRateLimited() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimited++
}

// LastOutcome returns the most recent authorize outcome
func (r *RecordingMetrics) LastOutcome() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return ""
	}
	return r.outcomes[len(r.outcomes)-1]
}

// Outcomes returns every recorded authorize outcome
func (r *RecordingMetrics) Outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
