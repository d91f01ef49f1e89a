package repository

import (
	"context"
	"sync"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/google/uuid"
)

// MemoryAccounts is an in-process auth.AccountRepository, used by tests
// and by the memory storage profile.
type MemoryAccounts struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*auth.Account
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

var (
	_ auth.AccountRepository = (*MemoryAccounts)(nil)
	_ auth.LoginRecorder     = (*MemoryAccounts)(nil)
)

// NewMemoryAccounts creates an empty repository
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		byID:    make(map[uuid.UUID]*auth.Account),
		byEmail: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

// WithMemoryClock replaces the clock used for timestamps
func (m *MemoryAccounts) WithMemoryClock(now func() time.Time) *MemoryAccounts {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *MemoryAccounts) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clone(m.byID[id]), nil
}

func (m *MemoryAccounts) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clone(account), nil
}

func (m *MemoryAccounts) Create(ctx context.Context, email, passwordHash string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = auth.NormalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[email]; taken {
		return nil, auth.ErrEmailTaken
	}

	now := m.now().UTC()
	account := &auth.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       auth.AccountStatusUnverified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byID[account.ID] = account
	m.byEmail[email] = account.ID
	return clone(account), nil
}

func (m *MemoryAccounts) SetVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.update(ctx, id, func(a *auth.Account) error {
		if a.Verified() {
			return auth.ErrAlreadyVerified
		}
		a.Status = auth.AccountStatusVerified
		verifiedAt := at.UTC()
		a.VerifiedAt = &verifiedAt
		return nil
	})
}

func (m *MemoryAccounts) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return m.update(ctx, id, func(a *auth.Account) error {
		a.PasswordHash = hash
		return nil
	})
}

func (m *MemoryAccounts) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, ip string) error {
	return m.update(ctx, id, func(a *auth.Account) error {
		loginAt := at.UTC()
		a.LastLoginAt = &loginAt
		a.LastLoginIP = ip
		return nil
	})
}

func (m *MemoryAccounts) update(ctx context.Context, id uuid.UUID, fn func(*auth.Account) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	if err := fn(account); err != nil {
		return err
	}
	account.UpdatedAt = m.now().UTC()
	return nil
}

func clone(a *auth.Account) *auth.Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
