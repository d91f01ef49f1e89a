package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenCodec signs and verifies kind-tagged HS256 tokens.
// Verification is pure: it never touches the TokenStore.
type TokenCodec struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	policy     TTLPolicy
	now        func() time.Time
	nonces     NonceSource
	logger     Logger
}

// CodecOption customizes a TokenCodec
type CodecOption func(*TokenCodec)

// WithCodecClock injects the clock used for issuance and expiry checks
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCodecIssuer sets the iss claim, also enforced on verify
func WithCodecIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) {
		c.issuer = issuer
	}
}

// WithCodecAudience sets the aud claim, also enforced on verify
func WithCodecAudience(audience ...string) CodecOption {
	return func(c *TokenCodec) {
		if len(audience) == 0 {
			c.audience = nil
			return
		}
		c.audience = append(jwt.ClaimStrings(nil), audience...)
	}
}

// WithTTLPolicy replaces the per-kind lifetime policy
func WithTTLPolicy(policy TTLPolicy) CodecOption {
	return func(c *TokenCodec) {
		if len(policy) > 0 {
			c.policy = policy
		}
	}
}

// WithNonceSource replaces the nonce generator
func WithNonceSource(src NonceSource) CodecOption {
	return func(c *TokenCodec) {
		if src != nil {
			c.nonces = src
		}
	}
}

// WithCodecLogger sets the logger
func WithCodecLogger(logger Logger) CodecOption {
	return func(c *TokenCodec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTokenCodec creates a codec for signingKey. The key is copied and
// never mutated afterwards.
func NewTokenCodec(signingKey []byte, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		signingKey: append([]byte(nil), signingKey...),
		policy:     DefaultTTLPolicy(),
		now:        time.Now,
		nonces:     RandomNonce,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NewTokenCodecFromConfig builds a codec from process configuration
func NewTokenCodecFromConfig(cfg Config, opts ...CodecOption) *TokenCodec {
	base := []CodecOption{
		WithCodecIssuer(cfg.GetIssuer()),
		WithCodecAudience(cfg.GetAudience()...),
		WithTTLPolicy(DefaultTTLPolicy().WithDefaults(cfg)),
	}
	return NewTokenCodec([]byte(cfg.GetSigningKey()), append(base, opts...)...)
}

// SignOption customizes a single Sign call
type SignOption func(*signOptions)

type signOptions struct {
	ttl   time.Duration
	nonce string
}

// WithTTL requests a custom lifetime, clamped into the kind's window
func WithTTL(ttl time.Duration) SignOption {
	return func(o *signOptions) {
		o.ttl = ttl
	}
}

// WithNonce uses nonce instead of generating one. Ignored for access tokens.
func WithNonce(nonce string) SignOption {
	return func(o *signOptions) {
		o.nonce = nonce
	}
}

// TTL returns the lifetime a token of kind gets without a custom TTL
func (c *TokenCodec) TTL(kind TokenKind) time.Duration {
	return c.policy.TTL(kind, 0)
}

// Sign mints a token for subject. Stateful kinds always carry a nonce,
// access tokens never do.
func (c *TokenCodec) Sign(subject string, kind TokenKind, opts ...SignOption) (Token, error) {
	if len(c.signingKey) == 0 {
		return Token{}, ErrSigningUnavailable
	}
	if subject == "" || !kind.Valid() {
		return Token{}, ErrInvalidInput
	}

	options := signOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	nonce := ""
	if kind.Stateful() {
		nonce = options.nonce
		if nonce == "" {
			var err error
			if nonce, err = c.nonces(); err != nil {
				return Token{}, err
			}
		}
	}

	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(c.policy.TTL(kind, options.ttl))

	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind:  kind,
		Nonce: nonce,
	}
	if len(c.audience) > 0 {
		claims.Audience = append(jwt.ClaimStrings(nil), c.audience...)
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		c.logger.Error("token codec failed to sign", "kind", kind, "error", err)
		return Token{}, WrapKind(ErrSigningUnavailable, err, "sign token")
	}

	return Token{Raw: raw, Claims: claimsFromJWT(claims)}, nil
}

// Verify checks signature, then expiry, then kind. Failures are
// ErrTokenMalformed, ErrTokenExpired or ErrTokenKindMismatch.
func (c *TokenCodec) Verify(raw string, expected TokenKind) (Claims, error) {
	if len(c.signingKey) == 0 {
		return Claims{}, ErrSigningUnavailable
	}
	if raw == "" {
		return Claims{}, ErrTokenMalformed
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, c.keyFunc, c.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || c.expiredUnverified(raw) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, WrapKind(ErrTokenMalformed, err, "parse token")
	}

	if !claims.Kind.Valid() || claims.Subject == "" {
		return Claims{}, ErrTokenMalformed
	}
	if claims.Kind.Stateful() && claims.Nonce == "" {
		return Claims{}, ErrTokenMalformed
	}
	if claims.Kind != expected {
		return Claims{}, ErrTokenKindMismatch
	}

	return claimsFromJWT(claims), nil
}

func (c *TokenCodec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		c.logger.Warn("token codec rejected unexpected signing method", "alg", t.Header["alg"])
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.signingKey, nil
}

func (c *TokenCodec) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if len(c.audience) > 0 {
		opts = append(opts, jwt.WithAudience(c.audience[0]))
	}
	return opts
}

// expiredUnverified reports whether a structurally valid token is past its
// expiry, so expiry wins over a signature failure.
func (c *TokenCodec) expiredUnverified(raw string) bool {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}
