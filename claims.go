package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the signed payload. Kind is part of the signature so a
// token minted for one purpose cannot be replayed for another.
type TokenClaims struct {
	jwt.RegisteredClaims
	Kind  TokenKind `json:"knd"`
	Nonce string    `json:"nce,omitempty"`
}

// Claims is the verified view of a token
type Claims struct {
	ID        string
	Subject   string
	Kind      TokenKind
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token is a signed token together with its claims
type Token struct {
	Raw string
	Claims
}

// TTL returns the lifetime the token was issued with
func (t Token) TTL() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

func claimsFromJWT(tc *TokenClaims) Claims {
	out := Claims{
		ID:      tc.ID,
		Subject: tc.Subject,
		Kind:    tc.Kind,
		Nonce:   tc.Nonce,
	}
	if tc.IssuedAt != nil {
		out.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		out.ExpiresAt = tc.ExpiresAt.Time
	}
	return out
}
