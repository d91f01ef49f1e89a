package auth_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-auth-lifecycle/repository"
	"github.com/goliatone/go-auth-lifecycle/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSigningKey = "test-signing-key-0123456789abcdef"
	testPassword   = "correct horse battery"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func assertKind(t *testing.T, err error, textCode string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, textCode, auth.KindOf(err), "unexpected error: %v", err)
}

// fixture wires the real components over in-memory adapters
type fixture struct {
	clock     *clock
	accounts  *repository.MemoryAccounts
	store     *memory.Store
	hasher    *auth.Hasher
	codec     *auth.TokenCodec
	mail      *outbox
	sink      *recordingSink
	sessions  *auth.SessionIssuer
	lifecycle *auth.AccountLifecycle
	guard     *auth.AuthGuard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := newClock()
	f := &fixture{
		clock:    clk,
		accounts: repository.NewMemoryAccounts().WithMemoryClock(clk.Now),
		store:    memory.New(memory.WithClock(clk.Now), memory.WithReapInterval(0)),
		hasher:   auth.NewHasher(auth.MinHashCost),
		mail:     &outbox{},
		sink:     &recordingSink{},
	}
	t.Cleanup(func() { f.store.Close() })

	f.codec = auth.NewTokenCodec([]byte(testSigningKey),
		auth.WithCodecClock(clk.Now),
		auth.WithCodecIssuer("auth-test"),
		auth.WithCodecLogger(auth.NoopLogger()),
	)
	f.sessions = auth.NewSessionIssuer(f.accounts, f.hasher, f.codec, f.store,
		auth.WithSessionClock(clk.Now),
		auth.WithSessionLogger(auth.NoopLogger()),
		auth.WithSessionActivitySink(f.sink),
	)
	f.lifecycle = auth.NewAccountLifecycle(f.accounts, f.hasher, f.codec, f.store, f.mail,
		auth.WithLifecycleClock(clk.Now),
		auth.WithLifecycleLogger(auth.NoopLogger()),
		auth.WithLifecycleActivitySink(f.sink),
	)
	f.guard = auth.NewAuthGuard(f.codec, auth.NoopLogger())
	return f
}

// signUp creates an account and returns the token from the mailed link
func (f *fixture) signUp(t *testing.T, email string) (*auth.Account, string) {
	t.Helper()
	res, err := f.lifecycle.SignUp(context.Background(), email, testPassword)
	require.NoError(t, err)
	require.True(t, res.MailSent)
	return res.Account, f.lastLinkToken(t)
}

// verifiedAccount signs up and confirms an account
func (f *fixture) verifiedAccount(t *testing.T, email string) *auth.Account {
	t.Helper()
	_, token := f.signUp(t, email)
	account, err := f.lifecycle.ConfirmAccount(context.Background(), token)
	require.NoError(t, err)
	return account
}

func (f *fixture) login(t *testing.T, email string) auth.TokenPair {
	t.Helper()
	pair, err := f.sessions.Login(context.Background(), auth.LoginInput{Email: email, Password: testPassword})
	require.NoError(t, err)
	return pair
}

func (f *fixture) lastLinkToken(t *testing.T) string {
	t.Helper()
	mail, ok := f.mail.last()
	require.True(t, ok, "no mail sent")
	u, err := url.Parse(mail.Link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}
