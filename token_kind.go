package auth

import "time"

// TokenKind discriminates validation and TTL policy for a token
type TokenKind string

const (
	TokenAccess        TokenKind = "access"
	TokenRefresh       TokenKind = "refresh"
	TokenEmailConfirm  TokenKind = "email_confirm"
	TokenPasswordReset TokenKind = "password_reset"
)

// TokenKinds lists every supported kind
var TokenKinds = []TokenKind{TokenAccess, TokenRefresh, TokenEmailConfirm, TokenPasswordReset}

// Valid reports whether k is a known kind
func (k TokenKind) Valid() bool {
	switch k {
	case TokenAccess, TokenRefresh, TokenEmailConfirm, TokenPasswordReset:
		return true
	}
	return false
}

// OneTime reports whether a token of this kind may be used exactly once
func (k TokenKind) OneTime() bool {
	return k == TokenEmailConfirm || k == TokenPasswordReset
}

// Stateful reports whether the token carries a nonce backed by the TokenStore
func (k TokenKind) Stateful() bool {
	return k != TokenAccess && k.Valid()
}

// Namespace is the TokenStore key prefix for nonces of this kind
func (k TokenKind) Namespace() string {
	switch k {
	case TokenRefresh:
		return "refresh"
	case TokenEmailConfirm:
		return "confirm"
	case TokenPasswordReset:
		return "reset"
	}
	return ""
}

func (k TokenKind) String() string {
	return string(k)
}

// TTLWindow bounds the lifetime of one token kind
type TTLWindow struct {
	Min     time.Duration
	Max     time.Duration
	Default time.Duration
}

// Clamp returns d bounded to the window, or the default when d is not positive
func (w TTLWindow) Clamp(d time.Duration) time.Duration {
	if d <= 0 {
		return w.Default
	}
	if d < w.Min {
		return w.Min
	}
	if d > w.Max {
		return w.Max
	}
	return d
}

// TTLPolicy maps each kind to its lifetime window
type TTLPolicy map[TokenKind]TTLWindow

const day = 24 * time.Hour

// DefaultTTLPolicy returns the reference lifetimes
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		TokenAccess:        {Min: 15 * time.Minute, Max: 24 * time.Hour, Default: 15 * time.Minute},
		TokenRefresh:       {Min: 30 * day, Max: 90 * day, Default: 30 * day},
		TokenEmailConfirm:  {Min: time.Minute, Max: time.Hour, Default: 15 * time.Minute},
		TokenPasswordReset: {Min: time.Minute, Max: time.Hour, Default: 15 * time.Minute},
	}
}

// TTL returns the lifetime for kind, applying custom when positive
func (p TTLPolicy) TTL(kind TokenKind, custom time.Duration) time.Duration {
	w, ok := p[kind]
	if !ok {
		w = DefaultTTLPolicy()[kind]
	}
	return w.Clamp(custom)
}

// WithDefaults returns a copy of the policy whose defaults are replaced by
// the configured lifetimes, clamped into each window.
func (p TTLPolicy) WithDefaults(cfg Config) TTLPolicy {
	out := make(TTLPolicy, len(p))
	for kind, w := range p {
		if cfg != nil {
			if d := cfg.GetTokenTTL(kind); d > 0 {
				w.Default = w.Clamp(d)
			}
		}
		out[kind] = w
	}
	return out
}
