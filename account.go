package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LinkBuilder turns a signed one-time token into the URL mailed to the user
type LinkBuilder struct {
	BaseURL     string
	ConfirmPath string
	ResetPath   string
}

// DefaultLinkBuilder points at the default API routes on localhost
func DefaultLinkBuilder() LinkBuilder {
	return LinkBuilder{
		BaseURL:     "http://localhost:8080",
		ConfirmPath: "/auth/confirm",
		ResetPath:   "/auth/password/reset/confirm",
	}
}

// Link returns the host URL carrying token for kind
func (l LinkBuilder) Link(kind TokenKind, token string) string {
	path := l.ConfirmPath
	if kind == TokenPasswordReset {
		path = l.ResetPath
	}
	return strings.TrimRight(l.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// SignUpResult describes a created account
type SignUpResult struct {
	Account *Account
	// MailSent is false when the account was created but the confirmation
	// could not be stored or delivered; ResendConfirmation recovers.
	MailSent              bool
	ConfirmationExpiresAt time.Time
}

// AccountLifecycle handles signup, email confirmation and password reset
type AccountLifecycle struct {
	accounts AccountRepository
	hasher   *Hasher
	codec    *TokenCodec
	confirm  kindStore
	reset    kindStore
	refresh  kindStore
	mailer   Mailer
	links    LinkBuilder
	states   *AccountStateMachine
	timeout  time.Duration
	now      func() time.Time
	sink     ActivitySink
	logger   Logger
}

// LifecycleOption customizes an AccountLifecycle
type LifecycleOption func(*AccountLifecycle)

// WithLifecycleClock injects a clock
func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(a *AccountLifecycle) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLifecycleTimeout bounds each store and repository call
func WithLifecycleTimeout(d time.Duration) LifecycleOption {
	return func(a *AccountLifecycle) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLifecycleLogger sets the logger
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(a *AccountLifecycle) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLifecycleActivitySink publishes signup, confirmation and reset events
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(a *AccountLifecycle) {
		a.sink = normalizeActivitySink(sink)
	}
}

// WithLinkBuilder sets how mailed links are built
func WithLinkBuilder(links LinkBuilder) LifecycleOption {
	return func(a *AccountLifecycle) {
		a.links = links
	}
}

// NewAccountLifecycle wires an AccountLifecycle
func NewAccountLifecycle(accounts AccountRepository, hasher *Hasher, codec *TokenCodec, store TokenStore, mailer Mailer, opts ...LifecycleOption) *AccountLifecycle {
	a := &AccountLifecycle{
		accounts: accounts,
		hasher:   hasher,
		codec:    codec,
		confirm:  newKindStore(store, TokenEmailConfirm),
		reset:    newKindStore(store, TokenPasswordReset),
		refresh:  newKindStore(store, TokenRefresh),
		mailer:   mailer,
		links:    DefaultLinkBuilder(),
		timeout:  DefaultOperationTimeout,
		now:      time.Now,
		sink:     noopActivitySink{},
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.states = NewAccountStateMachine(accounts,
		WithStateMachineClock(a.now),
		WithStateMachineActivitySink(a.sink),
		WithStateMachineLogger(a.logger),
	)
	return a
}

// SignUp creates an unverified account and mails a confirmation link.
// The repository's uniqueness constraint is the authoritative guard for
// ErrEmailTaken; the lookup before it only short-circuits the common case.
func (a *AccountLifecycle) SignUp(ctx context.Context, email, password string) (SignUpResult, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return SignUpResult{}, ErrInvalidInput
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return SignUpResult{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if _, err := a.accounts.FindByEmail(opCtx, email); err == nil {
		return SignUpResult{}, ErrEmailTaken
	} else if !IsKind(err, TextCodeNotFound) {
		return SignUpResult{}, storeFailure(err, "find account")
	}

	account, err := a.accounts.Create(opCtx, email, hash)
	if err != nil {
		if IsKind(err, TextCodeEmailTaken) {
			return SignUpResult{}, ErrEmailTaken
		}
		return SignUpResult{}, storeFailure(err, "create account")
	}
	account.EnsureStatus()

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventSignUp,
		AccountID: account.ID.String(),
		ToStatus:  account.Status,
	})

	result := SignUpResult{Account: account}
	expiresAt, err := a.sendConfirmation(opCtx, account)
	if err != nil {
		a.logger.Error("signup confirmation not delivered", "account_id", account.ID, "error", err)
		return result, nil
	}

	result.MailSent = true
	result.ConfirmationExpiresAt = expiresAt
	return result, nil
}

// ResendConfirmation mails a fresh confirmation link to an unverified
// account. Verified accounts are left alone; unknown emails yield ErrNotFound.
func (a *AccountLifecycle) ResendConfirmation(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	account, err := a.accounts.FindByEmail(opCtx, email)
	if err != nil {
		if IsKind(err, TextCodeNotFound) {
			return ErrNotFound
		}
		return storeFailure(err, "find account")
	}

	if account.Verified() {
		return nil
	}

	_, err = a.sendConfirmation(opCtx, account)
	return err
}

// ConfirmAccount consumes an email confirmation token and marks the
// account verified. Every token failure collapses to ErrTokenInvalid.
func (a *AccountLifecycle) ConfirmAccount(ctx context.Context, token string) (*Account, error) {
	claims, err := a.codec.Verify(token, TokenEmailConfirm)
	if err != nil {
		return nil, collapseTokenError(err)
	}

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	id, err := a.consumeOneTime(opCtx, a.confirm, claims)
	if err != nil {
		return nil, err
	}

	account, err := a.accounts.FindByID(opCtx, id)
	if err != nil {
		if IsKind(err, TextCodeNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, storeFailure(err, "find account")
	}

	if account.Verified() {
		return nil, ErrTokenInvalid
	}

	account, err = a.states.Transition(opCtx, account, AccountStatusVerified, WithTransitionReason("email_confirmed"))
	if err != nil {
		if IsKind(err, textCodeInvalidTransition) || IsKind(err, TextCodeAlreadyVerified) {
			return nil, ErrTokenInvalid
		}
		return nil, storeFailure(err, "mark account verified")
	}

	if _, err := a.confirm.revokeSubject(opCtx, claims.Subject); err != nil {
		a.logger.Warn("stale confirmation links not revoked", "account_id", claims.Subject, "error", err)
	}

	return account, nil
}

// RequestPasswordReset mails a reset link. ErrNotFound is returned for
// unknown emails; the transport must render it like success.
func (a *AccountLifecycle) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	account, err := a.accounts.FindByEmail(opCtx, email)
	if err != nil {
		if IsKind(err, TextCodeNotFound) {
			return ErrNotFound
		}
		return storeFailure(err, "find account")
	}

	if _, err := a.sendOneTime(opCtx, account, TokenPasswordReset, a.reset); err != nil {
		return err
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		AccountID: account.ID.String(),
	})
	return nil
}

// ConfirmPasswordReset consumes a reset token and replaces the password
// hash. Verification status is never touched. Outstanding refresh and
// reset tokens of the account are revoked afterwards.
func (a *AccountLifecycle) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	claims, err := a.codec.Verify(token, TokenPasswordReset)
	if err != nil {
		return collapseTokenError(err)
	}

	// hash before consuming so a rejected password does not burn the link
	hash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	id, err := a.consumeOneTime(opCtx, a.reset, claims)
	if err != nil {
		return err
	}

	if err := a.accounts.SetPasswordHash(opCtx, id, hash); err != nil {
		if IsKind(err, TextCodeNotFound) {
			return ErrTokenInvalid
		}
		return storeFailure(err, "update password hash")
	}

	sessions, err := a.refresh.revokeSubject(opCtx, claims.Subject)
	if err != nil {
		a.logger.Error("sessions not revoked after password reset", "account_id", claims.Subject, "error", err)
	}
	if _, err := a.reset.revokeSubject(opCtx, claims.Subject); err != nil {
		a.logger.Warn("stale reset links not revoked", "account_id", claims.Subject, "error", err)
	}

	a.record(ctx, ActivityEvent{
		EventType:    ActivityEventPasswordResetSuccess,
		AccountID:    claims.Subject,
		SessionState: SessionRevoked,
		Metadata:     map[string]any{"revoked_sessions": sessions},
	})
	return nil
}

// Current returns the account behind an authorized subject
func (a *AccountLifecycle) Current(ctx context.Context, accountID string) (*Account, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, ErrNotFound
	}

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	account, err := a.accounts.FindByID(opCtx, id)
	if err != nil {
		if IsKind(err, TextCodeNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure(err, "find account")
	}
	return account, nil
}

func (a *AccountLifecycle) sendConfirmation(ctx context.Context, account *Account) (time.Time, error) {
	expiresAt, err := a.sendOneTime(ctx, account, TokenEmailConfirm, a.confirm)
	if err != nil {
		return time.Time{}, err
	}
	a.record(ctx, ActivityEvent{
		EventType: ActivityEventConfirmationSent,
		AccountID: account.ID.String(),
	})
	return expiresAt, nil
}

// sendOneTime mints a one-time token, stores its nonce and mails the link.
// The nonce is revoked again when delivery fails.
func (a *AccountLifecycle) sendOneTime(ctx context.Context, account *Account, kind TokenKind, store kindStore) (time.Time, error) {
	subject := account.ID.String()

	token, err := a.codec.Sign(subject, kind)
	if err != nil {
		return time.Time{}, err
	}

	if err := store.put(ctx, token.Nonce, subject, token.TTL()); err != nil {
		return time.Time{}, err
	}

	mail := Mail{
		To:        account.Email,
		Subject:   mailSubject(kind),
		Template:  mailTemplate(kind),
		Link:      a.links.Link(kind, token.Raw),
		ExpiresAt: token.ExpiresAt,
	}

	if err := a.mailer.Send(ctx, mail); err != nil {
		if rerr := store.revoke(ctx, token.Nonce); rerr != nil {
			a.logger.Warn("undelivered link not revoked", "account_id", subject, "kind", kind, "error", rerr)
		}
		return time.Time{}, WrapKind(ErrMailUnavailable, err, "send "+string(mail.Template))
	}

	return token.ExpiresAt, nil
}

func (a *AccountLifecycle) consumeOneTime(ctx context.Context, store kindStore, claims Claims) (uuid.UUID, error) {
	subject, err := store.consume(ctx, claims.Nonce)
	if err != nil {
		if IsKind(err, TextCodeNotFound) {
			return uuid.Nil, ErrTokenInvalid
		}
		a.logger.Error("one-time token consume failed", "kind", claims.Kind, "error", err)
		return uuid.Nil, err
	}

	if subject != claims.Subject {
		return uuid.Nil, ErrTokenInvalid
	}

	id, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return id, nil
}

func (a *AccountLifecycle) record(ctx context.Context, event ActivityEvent) {
	activityRecorder{sink: a.sink, logger: a.logger, now: a.now}.record(ctx, event)
}

// collapseTokenError maps codec failures onto the one-time link failure,
// keeping configuration errors visible.
func collapseTokenError(err error) error {
	if IsKind(err, TextCodeSigningUnavailable) {
		return err
	}
	return ErrTokenInvalid
}

func mailSubject(kind TokenKind) string {
	if kind == TokenPasswordReset {
		return "Reset your password"
	}
	return "Confirm your account"
}

func mailTemplate(kind TokenKind) MailTemplate {
	if kind == TokenPasswordReset {
		return MailResetPassword
	}
	return MailConfirmAccount
}
