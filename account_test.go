package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSignUp(t *testing.T) {
	f := newFixture(t)

	res, err := f.lifecycle.SignUp(context.Background(), " Ada@Example.com ", testPassword)
	require.NoError(t, err)
	require.NotNil(t, res.Account)
	assert.Equal(t, "ada@example.com", res.Account.Email)
	assert.Equal(t, auth.AccountStatusUnverified, res.Account.Status)
	assert.NotEqual(t, testPassword, res.Account.PasswordHash)
	assert.True(t, res.MailSent)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), res.ConfirmationExpiresAt.UTC())

	mail, ok := f.mail.last()
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", mail.To)
	assert.Equal(t, auth.MailConfirmAccount, mail.Template)
	assert.True(t, strings.HasPrefix(mail.Link, "http://localhost:8080/auth/confirm?token="))
	assert.Equal(t, res.ConfirmationExpiresAt, mail.ExpiresAt)

	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventSignUp, auth.ActivityEventConfirmationSent}, f.sink.types())
}

func TestSignUpRejectsTakenEmail(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "ada@example.com")

	_, err := f.lifecycle.SignUp(context.Background(), "ADA@example.com", testPassword)
	assertKind(t, err, auth.TextCodeEmailTaken)
	assert.Equal(t, 1, f.mail.count())
}

func TestSignUpRaceLosesOnUniqueConstraint(t *testing.T) {
	accounts := &MockAccounts{}
	accounts.On("FindByEmail", mock.Anything, "ada@example.com").Return(nil, auth.ErrNotFound).Once()
	accounts.On("Create", mock.Anything, "ada@example.com", mock.Anything).Return(nil, auth.ErrEmailTaken).Once()

	lifecycle := auth.NewAccountLifecycle(accounts, auth.NewHasher(auth.MinHashCost), newTestCodec(newClock()),
		&MockTokenStore{}, &MockMailer{}, auth.WithLifecycleLogger(auth.NoopLogger()))

	_, err := lifecycle.SignUp(context.Background(), "ada@example.com", testPassword)
	assertKind(t, err, auth.TextCodeEmailTaken)
	accounts.AssertExpectations(t)
}

func TestSignUpInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.lifecycle.SignUp(context.Background(), "  ", testPassword)
	assertKind(t, err, auth.TextCodeInvalidInput)

	_, err = f.lifecycle.SignUp(context.Background(), "ada@example.com", "")
	assertKind(t, err, auth.TextCodeInvalidInput)

	_, err = f.lifecycle.SignUp(context.Background(), "ada@example.com", strings.Repeat("x", 100))
	assertKind(t, err, auth.TextCodeInvalidInput)
}

func TestSignUpMailFailureKeepsAccount(t *testing.T) {
	f := newFixture(t)
	f.mail.fail(errors.New("smtp: 421 service not available"))

	res, err := f.lifecycle.SignUp(context.Background(), "ada@example.com", testPassword)
	require.NoError(t, err)
	assert.False(t, res.MailSent)
	assert.Zero(t, f.store.Len(), "undelivered nonce is revoked")

	_, err = f.accounts.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)

	f.mail.fail(nil)
	require.NoError(t, f.lifecycle.ResendConfirmation(context.Background(), "ada@example.com"))
	token := f.lastLinkToken(t)

	account, err := f.lifecycle.ConfirmAccount(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, account.Verified())
}

func TestConfirmAccount(t *testing.T) {
	f := newFixture(t)
	created, token := f.signUp(t, "ada@example.com")

	account, err := f.lifecycle.ConfirmAccount(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)
	assert.True(t, account.Verified())
	require.NotNil(t, account.VerifiedAt)
	assert.Equal(t, f.clock.Now(), account.VerifiedAt.UTC())

	stored, err := f.accounts.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified())

	_, err = f.lifecycle.ConfirmAccount(context.Background(), token)
	assertKind(t, err, auth.TextCodeTokenInvalid)

	assert.Contains(t, f.sink.types(), auth.ActivityEventAccountStatusChanged)
}

func TestConfirmAccountFailuresCollapse(t *testing.T) {
	f := newFixture(t)
	account, token := f.signUp(t, "ada@example.com")

	reset, err := f.codec.Sign(account.ID.String(), auth.TokenPasswordReset)
	require.NoError(t, err)
	unstored, err := f.codec.Sign(account.ID.String(), auth.TokenEmailConfirm)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "garbage"},
		{name: "empty", token: ""},
		{name: "reset token", token: reset.Raw},
		{name: "nonce never stored", token: unstored.Raw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lifecycle.ConfirmAccount(context.Background(), tt.token)
			assertKind(t, err, auth.TextCodeTokenInvalid)
		})
	}

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(16 * time.Minute)
		_, err := f.lifecycle.ConfirmAccount(context.Background(), token)
		assertKind(t, err, auth.TextCodeTokenInvalid)

		stored, err := f.accounts.FindByID(context.Background(), account.ID)
		require.NoError(t, err)
		assert.False(t, stored.Verified())
	})
}

func TestConfirmAccountRevokesOtherLinks(t *testing.T) {
	f := newFixture(t)
	_, first := f.signUp(t, "ada@example.com")

	require.NoError(t, f.lifecycle.ResendConfirmation(context.Background(), "ada@example.com"))
	second := f.lastLinkToken(t)
	require.NotEqual(t, first, second)

	_, err := f.lifecycle.ConfirmAccount(context.Background(), second)
	require.NoError(t, err)

	_, err = f.lifecycle.ConfirmAccount(context.Background(), first)
	assertKind(t, err, auth.TextCodeTokenInvalid)
	assert.Zero(t, f.store.Len())
}

func TestConfirmAccountLosingRaceIsRejected(t *testing.T) {
	clk := newClock()
	codec := newTestCodec(clk)
	id := uuid.New()

	first, err := codec.Sign(id.String(), auth.TokenEmailConfirm)
	require.NoError(t, err)
	second, err := codec.Sign(id.String(), auth.TokenEmailConfirm)
	require.NoError(t, err)

	store := &MockTokenStore{}
	store.On("Consume", mock.Anything, "confirm:"+first.Claims.Nonce).Return("confirm:"+id.String(), nil).Once()
	store.On("Consume", mock.Anything, "confirm:"+second.Claims.Nonce).Return("confirm:"+id.String(), nil).Once()
	store.On("RevokeSubject", mock.Anything, mock.Anything).Return(0, nil)

	// both confirmations read the account before either one writes
	accounts := &MockAccounts{}
	accounts.On("FindByID", mock.Anything, id).
		Return(&auth.Account{ID: id, Email: "ada@example.com", Status: auth.AccountStatusUnverified}, nil).Once()
	accounts.On("FindByID", mock.Anything, id).
		Return(&auth.Account{ID: id, Email: "ada@example.com", Status: auth.AccountStatusUnverified}, nil).Once()
	accounts.On("SetVerified", mock.Anything, id, mock.Anything).Return(nil).Once()
	accounts.On("SetVerified", mock.Anything, id, mock.Anything).Return(auth.ErrAlreadyVerified).Once()

	sink := &recordingSink{}
	lifecycle := auth.NewAccountLifecycle(accounts, auth.NewHasher(auth.MinHashCost), codec, store, &MockMailer{},
		auth.WithLifecycleClock(clk.Now),
		auth.WithLifecycleLogger(auth.NoopLogger()),
		auth.WithLifecycleActivitySink(sink),
	)

	account, err := lifecycle.ConfirmAccount(context.Background(), first.Raw)
	require.NoError(t, err)
	assert.True(t, account.Verified())

	_, err = lifecycle.ConfirmAccount(context.Background(), second.Raw)
	assertKind(t, err, auth.TextCodeTokenInvalid)

	changed := 0
	for _, typ := range sink.types() {
		if typ == auth.ActivityEventAccountStatusChanged {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
	accounts.AssertExpectations(t)
}

func TestResendConfirmation(t *testing.T) {
	f := newFixture(t)
	f.verifiedAccount(t, "ada@example.com")
	sent := f.mail.count()

	require.NoError(t, f.lifecycle.ResendConfirmation(context.Background(), "ada@example.com"))
	assert.Equal(t, sent, f.mail.count(), "verified accounts get no mail")

	err := f.lifecycle.ResendConfirmation(context.Background(), "nobody@example.com")
	assertKind(t, err, auth.TextCodeNotFound)

	err = f.lifecycle.ResendConfirmation(context.Background(), "")
	assertKind(t, err, auth.TextCodeInvalidInput)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	account := f.verifiedAccount(t, "ada@example.com")
	session := f.login(t, "ada@example.com")

	require.NoError(t, f.lifecycle.RequestPasswordReset(context.Background(), "ADA@example.com"))
	mail, ok := f.mail.last()
	require.True(t, ok)
	assert.Equal(t, auth.MailResetPassword, mail.Template)
	assert.Contains(t, mail.Link, "/auth/password/reset/confirm?token=")
	token := f.lastLinkToken(t)

	require.NoError(t, f.lifecycle.ConfirmPasswordReset(context.Background(), token, "a brand new secret"))

	_, err := f.sessions.Login(context.Background(), auth.LoginInput{Email: "ada@example.com", Password: testPassword})
	assertKind(t, err, auth.TextCodeInvalidCredentials)

	pair, err := f.sessions.Login(context.Background(), auth.LoginInput{Email: "ada@example.com", Password: "a brand new secret"})
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), pair.AccountID)

	stored, err := f.accounts.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified(), "reset never changes verification")

	_, err = f.sessions.Refresh(context.Background(), session.RefreshToken.Raw)
	assertKind(t, err, auth.TextCodeTokenRevoked)

	err = f.lifecycle.ConfirmPasswordReset(context.Background(), token, "yet another secret")
	assertKind(t, err, auth.TextCodeTokenInvalid)

	types := f.sink.types()
	assert.Contains(t, types, auth.ActivityEventPasswordResetRequested)
	assert.Contains(t, types, auth.ActivityEventPasswordResetSuccess)
}

func TestPasswordResetRevokesOutstandingLinks(t *testing.T) {
	f := newFixture(t)
	f.verifiedAccount(t, "ada@example.com")

	require.NoError(t, f.lifecycle.RequestPasswordReset(context.Background(), "ada@example.com"))
	first := f.lastLinkToken(t)
	require.NoError(t, f.lifecycle.RequestPasswordReset(context.Background(), "ada@example.com"))
	second := f.lastLinkToken(t)

	require.NoError(t, f.lifecycle.ConfirmPasswordReset(context.Background(), second, "a brand new secret"))

	err := f.lifecycle.ConfirmPasswordReset(context.Background(), first, "sneaky secret")
	assertKind(t, err, auth.TextCodeTokenInvalid)
}

func TestPasswordResetRejectedPasswordKeepsLink(t *testing.T) {
	f := newFixture(t)
	f.verifiedAccount(t, "ada@example.com")

	require.NoError(t, f.lifecycle.RequestPasswordReset(context.Background(), "ada@example.com"))
	token := f.lastLinkToken(t)

	err := f.lifecycle.ConfirmPasswordReset(context.Background(), token, "")
	assertKind(t, err, auth.TextCodeInvalidInput)

	require.NoError(t, f.lifecycle.ConfirmPasswordReset(context.Background(), token, "a brand new secret"))
}

func TestPasswordResetFailures(t *testing.T) {
	f := newFixture(t)
	account := f.verifiedAccount(t, "ada@example.com")

	t.Run("unknown email", func(t *testing.T) {
		err := f.lifecycle.RequestPasswordReset(context.Background(), "nobody@example.com")
		assertKind(t, err, auth.TextCodeNotFound)
	})

	t.Run("confirm token presented", func(t *testing.T) {
		confirm, err := f.codec.Sign(account.ID.String(), auth.TokenEmailConfirm)
		require.NoError(t, err)
		err = f.lifecycle.ConfirmPasswordReset(context.Background(), confirm.Raw, "a brand new secret")
		assertKind(t, err, auth.TextCodeTokenInvalid)
	})

	t.Run("expired link", func(t *testing.T) {
		require.NoError(t, f.lifecycle.RequestPasswordReset(context.Background(), "ada@example.com"))
		token := f.lastLinkToken(t)
		f.clock.Advance(time.Hour)

		err := f.lifecycle.ConfirmPasswordReset(context.Background(), token, "a brand new secret")
		assertKind(t, err, auth.TextCodeTokenInvalid)
	})

	t.Run("mail failure", func(t *testing.T) {
		f.mail.fail(errors.New("smtp down"))
		defer f.mail.fail(nil)

		err := f.lifecycle.RequestPasswordReset(context.Background(), "ada@example.com")
		assertKind(t, err, auth.TextCodeMailUnavailable)
	})
}

func TestConfirmPasswordResetStoreUnavailable(t *testing.T) {
	clk := newClock()
	codec := newTestCodec(clk)
	id := uuid.New()
	token, err := codec.Sign(id.String(), auth.TokenPasswordReset)
	require.NoError(t, err)

	store := &MockTokenStore{}
	store.On("Consume", mock.Anything, "reset:"+token.Nonce).Return("", errors.New("redis: connection pool timeout")).Once()
	accounts := &MockAccounts{}

	lifecycle := auth.NewAccountLifecycle(accounts, auth.NewHasher(auth.MinHashCost), codec, store, &MockMailer{},
		auth.WithLifecycleLogger(auth.NoopLogger()))

	err = lifecycle.ConfirmPasswordReset(context.Background(), token.Raw, "a brand new secret")
	assertKind(t, err, auth.TextCodeStoreUnavailable)
	accounts.AssertNotCalled(t, "SetPasswordHash", mock.Anything, mock.Anything, mock.Anything)
}

func TestCurrent(t *testing.T) {
	f := newFixture(t)
	account := f.verifiedAccount(t, "ada@example.com")

	got, err := f.lifecycle.Current(context.Background(), account.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)

	_, err = f.lifecycle.Current(context.Background(), "not-a-uuid")
	assertKind(t, err, auth.TextCodeNotFound)

	_, err = f.lifecycle.Current(context.Background(), uuid.NewString())
	assertKind(t, err, auth.TextCodeNotFound)
}

func TestLinkBuilder(t *testing.T) {
	links := auth.LinkBuilder{BaseURL: "https://app.example.com/", ConfirmPath: "/verify", ResetPath: "/reset"}

	assert.Equal(t, "https://app.example.com/verify?token=a.b%2Bc", links.Link(auth.TokenEmailConfirm, "a.b+c"))
	assert.Equal(t, "https://app.example.com/reset?token=x", links.Link(auth.TokenPasswordReset, "x"))
}

func TestNamespacesAreIsolated(t *testing.T) {
	f := newFixture(t)
	account, confirm := f.signUp(t, "ada@example.com")

	n, err := f.sessions.LogoutAll(context.Background(), account.ID.String())
	require.NoError(t, err)
	assert.Zero(t, n, "refresh revocation must not touch confirmation nonces")

	_, err = f.lifecycle.ConfirmAccount(context.Background(), confirm)
	require.NoError(t, err)
}
