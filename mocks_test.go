package auth_test

import (
	"context"
	"sync"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockAccounts implements auth.AccountRepository
type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) Create(ctx context.Context, email, passwordHash string) (*auth.Account, error) {
	args := m.Called(ctx, email, passwordHash)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) SetVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockAccounts) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

// MockTokenStore implements auth.TokenStore
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Put(ctx context.Context, key, subject string, ttl time.Duration) error {
	args := m.Called(ctx, key, subject, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) Consume(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockTokenStore) Revoke(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockTokenStore) RevokeSubject(ctx context.Context, subject string) (int, error) {
	args := m.Called(ctx, subject)
	return args.Int(0), args.Error(1)
}

// MockMailer implements auth.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, mail auth.Mail) error {
	args := m.Called(ctx, mail)
	return args.Error(0)
}

// outbox records every mail and fails while err is set
type outbox struct {
	mu    sync.Mutex
	mails []auth.Mail
	err   error
}

func (o *outbox) Send(_ context.Context, mail auth.Mail) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.mails = append(o.mails, mail)
	return nil
}

func (o *outbox) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *outbox) last() (auth.Mail, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.mails) == 0 {
		return auth.Mail{}, false
	}
	return o.mails[len(o.mails)-1], true
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.mails)
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}
