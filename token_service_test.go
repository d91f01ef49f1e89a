package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(clk *clock, opts ...auth.CodecOption) *auth.TokenCodec {
	base := []auth.CodecOption{
		auth.WithCodecClock(clk.Now),
		auth.WithCodecIssuer("auth-test"),
		auth.WithCodecLogger(auth.NoopLogger()),
	}
	return auth.NewTokenCodec([]byte(testSigningKey), append(base, opts...)...)
}

func TestTokenCodecRoundTrip(t *testing.T) {
	clk := newClock()
	codec := newTestCodec(clk)

	for _, kind := range auth.TokenKinds {
		t.Run(kind.String(), func(t *testing.T) {
			token, err := codec.Sign("account-1", kind)
			require.NoError(t, err)
			require.NotEmpty(t, token.Raw)

			claims, err := codec.Verify(token.Raw, kind)
			require.NoError(t, err)
			assert.Equal(t, "account-1", claims.Subject)
			assert.Equal(t, kind, claims.Kind)
			assert.Equal(t, clk.Now(), claims.IssuedAt.UTC())
			assert.Equal(t, clk.Now().Add(codec.TTL(kind)), claims.ExpiresAt.UTC())
			assert.Equal(t, codec.TTL(kind), token.TTL())
			assert.NotEmpty(t, claims.ID)

			if kind.Stateful() {
				assert.NotEmpty(t, claims.Nonce)
				assert.Equal(t, token.Nonce, claims.Nonce)
			} else {
				assert.Empty(t, claims.Nonce)
			}
		})
	}
}

func TestTokenCodecNoncesAreUnique(t *testing.T) {
	codec := newTestCodec(newClock())

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := codec.Sign("account-1", auth.TokenRefresh)
		require.NoError(t, err)
		require.False(t, seen[token.Nonce])
		seen[token.Nonce] = true
	}
}

func TestTokenCodecTruncatesIssueTime(t *testing.T) {
	clk := newClock()
	clk.Advance(750 * time.Millisecond)
	codec := newTestCodec(clk)

	token, err := codec.Sign("account-1", auth.TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Truncate(time.Second), token.IssuedAt.UTC())
}

func TestTokenCodecCustomTTLIsClamped(t *testing.T) {
	codec := newTestCodec(newClock())

	token, err := codec.Sign("account-1", auth.TokenPasswordReset, auth.WithTTL(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, token.TTL())

	token, err = codec.Sign("account-1", auth.TokenAccess, auth.WithTTL(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, token.TTL())
}

func TestTokenCodecExpiry(t *testing.T) {
	clk := newClock()
	codec := newTestCodec(clk)

	token, err := codec.Sign("account-1", auth.TokenEmailConfirm)
	require.NoError(t, err)

	clk.Advance(codec.TTL(auth.TokenEmailConfirm) - time.Second)
	_, err = codec.Verify(token.Raw, auth.TokenEmailConfirm)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = codec.Verify(token.Raw, auth.TokenEmailConfirm)
	assertKind(t, err, auth.TextCodeTokenExpired)
}

func TestTokenCodecExpiredWinsOverSignature(t *testing.T) {
	clk := newClock()
	forger := auth.NewTokenCodec([]byte("another-signing-key-0123456789abcdef"),
		auth.WithCodecClock(clk.Now),
		auth.WithCodecIssuer("auth-test"),
	)
	codec := newTestCodec(clk)

	token, err := forger.Sign("account-1", auth.TokenAccess)
	require.NoError(t, err)

	_, err = codec.Verify(token.Raw, auth.TokenAccess)
	assertKind(t, err, auth.TextCodeTokenMalformed)

	clk.Advance(time.Hour)
	_, err = codec.Verify(token.Raw, auth.TokenAccess)
	assertKind(t, err, auth.TextCodeTokenExpired)
}

func TestTokenCodecVerifyFailures(t *testing.T) {
	clk := newClock()
	codec := newTestCodec(clk)

	access, err := codec.Sign("account-1", auth.TokenAccess)
	require.NoError(t, err)
	confirm, err := codec.Sign("account-1", auth.TokenEmailConfirm)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &auth.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-1",
			Issuer:    "auth-test",
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
		Kind: auth.TokenAccess,
	}).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	noKind, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-1",
			Issuer:    "auth-test",
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	noNonce, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-1",
			Issuer:    "auth-test",
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
		Kind: auth.TokenRefresh,
	}).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "account-1", Issuer: "auth-test"},
		Kind:             auth.TokenAccess,
	}).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	otherIssuer := auth.NewTokenCodec([]byte(testSigningKey), auth.WithCodecClock(clk.Now), auth.WithCodecIssuer("elsewhere"))
	foreign, err := otherIssuer.Sign("account-1", auth.TokenAccess)
	require.NoError(t, err)

	tests := []struct {
		name     string
		raw      string
		expected auth.TokenKind
		want     string
	}{
		{name: "empty", raw: "", expected: auth.TokenAccess, want: auth.TextCodeTokenMalformed},
		{name: "garbage", raw: "not.a.token", expected: auth.TokenAccess, want: auth.TextCodeTokenMalformed},
		{name: "tampered payload", raw: access.Raw[:len(access.Raw)-4] + "abcd", expected: auth.TokenAccess, want: auth.TextCodeTokenMalformed},
		{name: "other algorithm", raw: hs512, expected: auth.TokenAccess, want: auth.TextCodeTokenMalformed},
		{name: "missing kind", raw: noKind, expected: auth.TokenAccess, want: auth.TextCodeTokenMalformed},
		{name: "stateful without nonce", raw: noNonce, expected: auth.TokenRefresh, want: auth.TextCodeTokenMalformed},
		{name: "missing expiry", raw: noExpiry, expected: auth.TokenAccess, want: auth.TextCodeTokenMalformed},
		{name: "foreign issuer", raw: foreign.Raw, expected: auth.TokenAccess, want: auth.TextCodeTokenMalformed},
		{name: "confirm used as access", raw: confirm.Raw, expected: auth.TokenAccess, want: auth.TextCodeTokenKindMismatch},
		{name: "access used as refresh", raw: access.Raw, expected: auth.TokenRefresh, want: auth.TextCodeTokenKindMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.raw, tt.expected)
			assertKind(t, err, tt.want)
		})
	}
}

func TestTokenCodecSignInputs(t *testing.T) {
	codec := newTestCodec(newClock())

	_, err := codec.Sign("", auth.TokenAccess)
	assertKind(t, err, auth.TextCodeInvalidInput)

	_, err = codec.Sign("account-1", auth.TokenKind("admin"))
	assertKind(t, err, auth.TextCodeInvalidInput)
}

func TestTokenCodecWithoutKey(t *testing.T) {
	codec := auth.NewTokenCodec(nil)

	_, err := codec.Sign("account-1", auth.TokenAccess)
	assertKind(t, err, auth.TextCodeSigningUnavailable)

	_, err = codec.Verify("a.b.c", auth.TokenAccess)
	assertKind(t, err, auth.TextCodeSigningUnavailable)
}

func TestTokenCodecNonceOptions(t *testing.T) {
	codec := newTestCodec(newClock())

	token, err := codec.Sign("account-1", auth.TokenRefresh, auth.WithNonce("fixed"))
	require.NoError(t, err)
	assert.Equal(t, "fixed", token.Nonce)

	token, err = codec.Sign("account-1", auth.TokenAccess, auth.WithNonce("ignored"))
	require.NoError(t, err)
	assert.Empty(t, token.Nonce)

	failing := newTestCodec(newClock(), auth.WithNonceSource(func() (string, error) {
		return "", errors.New("entropy exhausted")
	}))
	_, err = failing.Sign("account-1", auth.TokenRefresh)
	assert.Error(t, err)
}

func TestTokenCodecAudience(t *testing.T) {
	clk := newClock()
	codec := newTestCodec(clk, auth.WithCodecAudience("web"))
	other := newTestCodec(clk, auth.WithCodecAudience("mobile"))

	token, err := codec.Sign("account-1", auth.TokenAccess)
	require.NoError(t, err)

	_, err = codec.Verify(token.Raw, auth.TokenAccess)
	require.NoError(t, err)

	_, err = other.Verify(token.Raw, auth.TokenAccess)
	assertKind(t, err, auth.TextCodeTokenMalformed)
}

func TestNewTokenCodecFromConfig(t *testing.T) {
	cfg := ttlConfig{auth.TokenAccess: 30 * time.Minute}
	codec := auth.NewTokenCodecFromConfig(cfg)

	assert.Equal(t, 30*time.Minute, codec.TTL(auth.TokenAccess))
	assert.Equal(t, 30*24*time.Hour, codec.TTL(auth.TokenRefresh))

	token, err := codec.Sign("account-1", auth.TokenAccess)
	require.NoError(t, err)
	_, err = codec.Verify(token.Raw, auth.TokenAccess)
	assert.NoError(t, err)
}
