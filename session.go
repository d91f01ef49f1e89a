package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultOperationTimeout bounds every store and repository round trip
const DefaultOperationTimeout = 5 * time.Second

// LoginInput holds the credentials and request metadata for a login
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// TokenPair is the result of a login or a refresh rotation
type TokenPair struct {
	AccountID    string
	AccessToken  Token
	RefreshToken Token
}

// SessionIssuer issues, rotates and revokes sessions
type SessionIssuer struct {
	accounts AccountRepository
	hasher   *Hasher
	codec    *TokenCodec
	refresh  kindStore
	timeout  time.Duration
	now      func() time.Time
	sink     ActivitySink
	logger   Logger
}

// SessionOption customizes a SessionIssuer
type SessionOption func(*SessionIssuer)

// WithSessionClock injects the clock used for login bookkeeping
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionIssuer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionTimeout bounds each store and repository call
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(s *SessionIssuer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSessionLogger sets the logger
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *SessionIssuer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionActivitySink publishes login, refresh and logout events
func WithSessionActivitySink(sink ActivitySink) SessionOption {
	return func(s *SessionIssuer) {
		s.sink = normalizeActivitySink(sink)
	}
}

// NewSessionIssuer wires a SessionIssuer
func NewSessionIssuer(accounts AccountRepository, hasher *Hasher, codec *TokenCodec, store TokenStore, opts ...SessionOption) *SessionIssuer {
	s := &SessionIssuer{
		accounts: accounts,
		hasher:   hasher,
		codec:    codec,
		refresh:  newKindStore(store, TokenRefresh),
		timeout:  DefaultOperationTimeout,
		now:      time.Now,
		sink:     noopActivitySink{},
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Login checks credentials and issues an access and refresh token.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *SessionIssuer) Login(ctx context.Context, in LoginInput) (TokenPair, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.accounts.FindByEmail(opCtx, email)
	if err != nil {
		if IsKind(err, TextCodeNotFound) {
			s.hasher.VerifyDummy(in.Password)
			s.loginFailed(ctx, "", "unknown_email", in)
			return TokenPair{}, ErrInvalidCredentials
		}
		s.logger.Error("login account lookup failed", "error", err)
		return TokenPair{}, storeFailure(err, "find account")
	}

	if !account.Verified() {
		s.loginFailed(ctx, account.ID.String(), "not_verified", in)
		return TokenPair{}, ErrNotVerified
	}

	ok, err := s.hasher.Verify(in.Password, account.PasswordHash)
	if err != nil {
		s.logger.Error("login found corrupt credential record", "account_id", account.ID, "error", err)
		return TokenPair{}, err
	}
	if !ok {
		s.loginFailed(ctx, account.ID.String(), "bad_password", in)
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issue(opCtx, account.ID.String())
	if err != nil {
		return TokenPair{}, err
	}

	s.recordLogin(opCtx, account.ID, in.IPAddress)
	s.record(ctx, ActivityEvent{
		EventType:    ActivityEventLoginSuccess,
		AccountID:    pair.AccountID,
		SessionState: SessionActive,
		Metadata:     requestMetadata(in),
	})

	return pair, nil
}

// Refresh rotates a refresh token. The presented token is consumed, so
// a second call with it fails with ErrTokenRevoked.
func (s *SessionIssuer) Refresh(ctx context.Context, rawRefresh string) (TokenPair, error) {
	claims, err := s.codec.Verify(rawRefresh, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	subject, err := s.refresh.consume(opCtx, claims.Nonce)
	if err != nil {
		if IsKind(err, TextCodeNotFound) {
			s.record(ctx, ActivityEvent{
				EventType:    ActivityEventSessionRevoked,
				AccountID:    claims.Subject,
				SessionState: SessionRevoked,
				Metadata:     map[string]any{"reason": "refresh_reuse"},
			})
			return TokenPair{}, ErrTokenRevoked
		}
		s.logger.Error("refresh consume failed", "account_id", claims.Subject, "error", err)
		return TokenPair{}, err
	}

	if subject != claims.Subject {
		s.logger.Warn("refresh nonce bound to another subject", "account_id", claims.Subject)
		return TokenPair{}, ErrTokenRevoked
	}

	pair, err := s.issue(opCtx, subject)
	if err != nil {
		return TokenPair{}, err
	}

	s.record(ctx, ActivityEvent{
		EventType:    ActivityEventSessionRefreshed,
		AccountID:    subject,
		SessionState: SessionActive,
	})

	return pair, nil
}

// Logout revokes the refresh token. It always succeeds from the caller's
// point of view; store failures are logged.
func (s *SessionIssuer) Logout(ctx context.Context, rawRefresh string) error {
	claims, err := s.codec.Verify(rawRefresh, TokenRefresh)
	if err != nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.refresh.revoke(opCtx, claims.Nonce); err != nil {
		s.logger.Warn("logout revoke failed", "account_id", claims.Subject, "error", err)
		return nil
	}

	s.record(ctx, ActivityEvent{
		EventType:    ActivityEventSessionRevoked,
		AccountID:    claims.Subject,
		SessionState: SessionRevoked,
		Metadata:     map[string]any{"reason": "logout"},
	})
	return nil
}

// LogoutAll revokes every refresh token issued to accountID and returns
// how many were live.
func (s *SessionIssuer) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if accountID == "" {
		return 0, ErrInvalidInput
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.refresh.revokeSubject(opCtx, accountID)
	if err != nil {
		return n, err
	}

	s.record(ctx, ActivityEvent{
		EventType:    ActivityEventSessionRevoked,
		AccountID:    accountID,
		SessionState: SessionRevoked,
		Metadata:     map[string]any{"reason": "logout_all", "revoked": n},
	})
	return n, nil
}

func (s *SessionIssuer) issue(ctx context.Context, accountID string) (TokenPair, error) {
	access, err := s.codec.Sign(accountID, TokenAccess)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := s.codec.Sign(accountID, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.refresh.put(ctx, refresh.Nonce, accountID, refresh.TTL()); err != nil {
		s.logger.Error("refresh nonce not stored", "account_id", accountID, "error", err)
		return TokenPair{}, err
	}

	return TokenPair{
		AccountID:    accountID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (s *SessionIssuer) recordLogin(ctx context.Context, id uuid.UUID, ip string) {
	recorder, ok := s.accounts.(LoginRecorder)
	if !ok {
		return
	}
	if err := recorder.RecordLogin(ctx, id, s.now(), ip); err != nil {
		s.logger.Warn("login bookkeeping failed", "account_id", id, "error", err)
	}
}

func (s *SessionIssuer) loginFailed(ctx context.Context, accountID, reason string, in LoginInput) {
	meta := requestMetadata(in)
	meta["reason"] = reason
	s.record(ctx, ActivityEvent{
		EventType:    ActivityEventLoginFailure,
		AccountID:    accountID,
		SessionState: SessionUnauthenticated,
		Metadata:     meta,
	})
}

func (s *SessionIssuer) record(ctx context.Context, event ActivityEvent) {
	activityRecorder{sink: s.sink, logger: s.logger, now: s.now}.record(ctx, event)
}

func requestMetadata(in LoginInput) map[string]any {
	meta := map[string]any{}
	if in.IPAddress != "" {
		meta["ip"] = in.IPAddress
	}
	if in.UserAgent != "" {
		meta["user_agent"] = in.UserAgent
	}
	return meta
}
