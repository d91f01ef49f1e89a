// Package csrf protects cookie-authenticated requests with a stateless
// double-submit token. The token is HMAC signed, mirrored in a readable
// cookie and must be echoed back in a header or form field on unsafe
// methods whenever the request carries a session cookie.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required")
)

// DefaultTokenLength is the nonce length in bytes
const DefaultTokenLength = 32

// DefaultContextKey is the Locals key holding the current token
const DefaultContextKey = "csrf_token"

// DefaultCookieName is the readable cookie mirroring the token
const DefaultCookieName = "csrf_token"

// DefaultFormFieldName is the form field checked for the token
const DefaultFormFieldName = "_token"

// DefaultHeaderName is the header checked for the token
const DefaultHeaderName = "X-CSRF-Token"

// DefaultExpiration is the token lifetime when Config.Expiration is zero
const DefaultExpiration = time.Hour

type Config struct {
	// Skip bypasses the middleware entirely
	Skip func(*fiber.Ctx) bool

	// Protected reports whether an unsafe request must carry a token.
	// Defaults to requests that carry one of SessionCookies.
	Protected func(*fiber.Ctx) bool

	// SessionCookies are the cookies that authenticate a request
	SessionCookies []string

	TokenLength    int
	ContextKey     string
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite string
	FormFieldName  string
	HeaderName     string

	ErrorHandler fiber.ErrorHandler

	// SafeMethods never require a token
	SafeMethods []string

	// Expiration bounds the age of a token
	Expiration time.Duration

	// SecureKey signs tokens. Must be at least 32 bytes; a random key is
	// generated when empty, which invalidates tokens across restarts.
	SecureKey []byte

	now func() time.Time
}

// New creates the CSRF middleware
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Skip != nil && cfg.Skip(c) {
			return c.Next()
		}

		current := c.Cookies(cfg.CookieName)
		valid := current != "" && validateToken(cfg, current) == nil

		method := strings.ToUpper(c.Method())
		if !slices.Contains(cfg.SafeMethods, method) && cfg.Protected(c) {
			if err := checkRequest(c, cfg, current); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		if !valid {
			token, err := generateToken(cfg)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}
			current = token
			c.Cookie(&fiber.Cookie{
				Name:     cfg.CookieName,
				Value:    token,
				Path:     cfg.CookiePath,
				Domain:   cfg.CookieDomain,
				Expires:  cfg.now().Add(cfg.Expiration),
				Secure:   cfg.CookieSecure,
				HTTPOnly: false,
				SameSite: cfg.CookieSameSite,
			})
		}

		c.Locals(cfg.ContextKey, current)
		return c.Next()
	}
}

// Token returns the token stored by the middleware for this request
func Token(c *fiber.Ctx, key ...string) string {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	token, _ := c.Locals(k).(string)
	return token
}

func checkRequest(c *fiber.Ctx, cfg Config, cookieToken string) error {
	received := extractToken(c, cfg)
	if received == "" || cookieToken == "" {
		return ErrTokenMissing
	}
	if subtle.ConstantTimeCompare([]byte(received), []byte(cookieToken)) != 1 {
		return ErrTokenMismatch
	}
	return validateToken(cfg, received)
}

func generateToken(cfg Config) (string, error) {
	if len(cfg.SecureKey) == 0 {
		return "", ErrSecureKeyMissing
	}

	nonce := make([]byte, cfg.TokenLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	payload := fmt.Sprintf("%d:%s", cfg.now().UTC().Unix(), hex.EncodeToString(nonce))
	token := payload + ":" + hex.EncodeToString(sign(cfg.SecureKey, payload))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func validateToken(cfg Config, token string) error {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 3 {
		return ErrTokenMismatch
	}

	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return ErrTokenMismatch
	}
	signature, err := hex.DecodeString(parts[2])
	if err != nil {
		return ErrTokenMismatch
	}

	if !hmac.Equal(signature, sign(cfg.SecureKey, parts[0]+":"+parts[1])) {
		return ErrTokenMismatch
	}

	if cfg.Expiration > 0 && cfg.now().UTC().After(time.Unix(timestamp, 0).Add(cfg.Expiration)) {
		return ErrTokenExpired
	}
	return nil
}

func sign(key []byte, payload string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func extractToken(c *fiber.Ctx, cfg Config) string {
	if token := c.Get(cfg.HeaderName); token != "" {
		return token
	}
	return c.FormValue(cfg.FormFieldName)
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultTokenLength
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.CookieSameSite == "" {
		cfg.CookieSameSite = fiber.CookieSameSiteLaxMode
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions, fiber.MethodTrace}
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = DefaultExpiration
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.Protected == nil {
		cookies := cfg.SessionCookies
		cfg.Protected = func(c *fiber.Ctx) bool {
			for _, name := range cookies {
				if c.Cookies(name) != "" {
					return true
				}
			}
			return false
		}
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	cfg.SecureKey = initializeSecureKey(cfg.SecureKey)
	return cfg
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusForbidden
	code := "CSRF_TOKEN_MISMATCH"
	switch {
	case errors.Is(err, ErrTokenMissing):
		code = "CSRF_TOKEN_MISSING"
	case errors.Is(err, ErrTokenExpired):
		code = "CSRF_TOKEN_EXPIRED"
	case errors.Is(err, ErrTokenMismatch):
	default:
		status = fiber.StatusInternalServerError
		code = "CSRF_ERROR"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": err.Error(),
		},
	})
}

func initializeSecureKey(current []byte) []byte {
	if len(current) > 0 {
		if len(current) < 32 {
			panic(fmt.Errorf("csrf: secure key must be at least 32 bytes, got %d", len(current)))
		}
		return current
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Errorf("csrf: unable to initialize secure key: %w", err))
	}
	return key
}
