// Package api exposes the session and account flows over fiber.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-auth-lifecycle/middleware/jwtware"
)

// Sessions is the session surface the controller drives. *auth.SessionIssuer implements it.
type Sessions interface {
	Login(ctx context.Context, in auth.LoginInput) (auth.TokenPair, error)
	Refresh(ctx context.Context, rawRefresh string) (auth.TokenPair, error)
	Logout(ctx context.Context, rawRefresh string) error
}

// Accounts is the account surface the controller drives. *auth.AccountLifecycle implements it.
type Accounts interface {
	SignUp(ctx context.Context, email, password string) (auth.SignUpResult, error)
	ResendConfirmation(ctx context.Context, email string) error
	ConfirmAccount(ctx context.Context, token string) (*auth.Account, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	Current(ctx context.Context, accountID string) (*auth.Account, error)
}

// HealthCheck reports whether a backing dependency is reachable
type HealthCheck func(ctx context.Context) error

type Routes struct {
	SignUp               string
	Confirm              string
	ResendConfirmation   string
	Login                string
	Refresh              string
	Logout               string
	PasswordReset        string
	PasswordResetConfirm string
	Me                   string
	Health               string
}

// DefaultRoutes are mounted relative to the router passed to Register
func DefaultRoutes() Routes {
	return Routes{
		SignUp:               "/auth/signup",
		Confirm:              "/auth/confirm",
		ResendConfirmation:   "/auth/confirm/resend",
		Login:                "/auth/login",
		Refresh:              "/auth/refresh",
		Logout:               "/auth/logout",
		PasswordReset:        "/auth/password/reset",
		PasswordResetConfirm: "/auth/password/reset/confirm",
		Me:                   "/auth/me",
		Health:               "/healthz",
	}
}

// CookieOptions controls the session cookies set next to the JSON body
type CookieOptions struct {
	Enabled     bool
	Secure      bool
	SameSite    string
	Domain      string
	AccessName  string
	RefreshName string
	RefreshPath string
}

// DefaultCookieOptions returns HttpOnly, Secure, Lax cookies
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Enabled:     true,
		Secure:      true,
		SameSite:    fiber.CookieSameSiteLaxMode,
		AccessName:  "auth_token",
		RefreshName: "refresh_token",
		RefreshPath: "/auth",
	}
}

type Controller struct {
	sessions Sessions
	accounts Accounts
	guard    fiber.Handler
	routes   Routes
	cookies  CookieOptions
	health   []HealthCheck
	logger   auth.Logger
	now      func() time.Time
}

type ControllerOption func(*Controller)

// WithGuard protects the Me route. Without it Me is not registered.
func WithGuard(guard fiber.Handler) ControllerOption {
	return func(a *Controller) {
		a.guard = guard
	}
}

// WithAuthGuard builds the jwtware guard from an auth.AuthGuard, reading
// the access token from the Authorization header or the access cookie.
func WithAuthGuard(guard jwtware.Authorizer) ControllerOption {
	return func(a *Controller) {
		a.guard = jwtware.New(jwtware.Config{
			Guard:        guard,
			ErrorHandler: a.fail,
			TokenLookup:  "header:" + fiber.HeaderAuthorization + ",cookie:" + a.cookies.AccessName,
		})
	}
}

func WithRoutes(routes Routes) ControllerOption {
	return func(a *Controller) {
		a.routes = routes
	}
}

func WithCookies(opts CookieOptions) ControllerOption {
	return func(a *Controller) {
		if opts.AccessName == "" {
			opts.AccessName = "auth_token"
		}
		if opts.RefreshName == "" {
			opts.RefreshName = "refresh_token"
		}
		if opts.RefreshPath == "" {
			opts.RefreshPath = "/auth"
		}
		a.cookies = opts
	}
}

func WithHealthCheck(checks ...HealthCheck) ControllerOption {
	return func(a *Controller) {
		a.health = append(a.health, checks...)
	}
}

func WithControllerLogger(logger auth.Logger) ControllerOption {
	return func(a *Controller) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithControllerClock(now func() time.Time) ControllerOption {
	return func(a *Controller) {
		if now != nil {
			a.now = now
		}
	}
}

// NewController creates the HTTP controller. Options are applied in
// order, so WithCookies must precede WithAuthGuard to change the cookie name.
func NewController(sessions Sessions, accounts Accounts, opts ...ControllerOption) *Controller {
	a := &Controller{
		sessions: sessions,
		accounts: accounts,
		routes:   DefaultRoutes(),
		cookies:  DefaultCookieOptions(),
		logger:   auth.NoopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Register mounts every route on r
func (a *Controller) Register(r fiber.Router) {
	r.Post(a.routes.SignUp, a.SignUp).Name("auth.signup")
	r.Get(a.routes.Confirm, a.Confirm).Name("auth.confirm.get")
	r.Post(a.routes.Confirm, a.Confirm).Name("auth.confirm.post")
	r.Post(a.routes.ResendConfirmation, a.ResendConfirmation).Name("auth.confirm.resend")
	r.Post(a.routes.Login, a.Login).Name("auth.login")
	r.Post(a.routes.Refresh, a.Refresh).Name("auth.refresh")
	r.Post(a.routes.Logout, a.Logout).Name("auth.logout")
	r.Post(a.routes.PasswordReset, a.RequestPasswordReset).Name("auth.password.reset")
	r.Post(a.routes.PasswordResetConfirm, a.ConfirmPasswordReset).Name("auth.password.reset.confirm")
	if a.guard != nil {
		r.Get(a.routes.Me, a.guard, a.Me).Name("auth.me")
	}
	r.Get(a.routes.Health, a.Health).Name("health")
}

type tokenResponse struct {
	AccountID        string    `json:"account_id"`
	TokenType        string    `json:"token_type"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type signUpResponse struct {
	Account               auth.AccountView `json:"account"`
	ConfirmationSent      bool             `json:"confirmation_sent"`
	ConfirmationExpiresAt *time.Time       `json:"confirmation_expires_at,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *Controller) SignUp(c *fiber.Ctx) error {
	payload := new(SignUpPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	if err := payload.Validate(); err != nil {
		return a.fail(c, err)
	}

	result, err := a.accounts.SignUp(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return a.fail(c, err)
	}

	res := signUpResponse{
		Account:          result.Account.View(),
		ConfirmationSent: result.MailSent,
	}
	if result.MailSent {
		res.ConfirmationExpiresAt = &result.ConfirmationExpiresAt
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Confirm accepts the token from the mailed link query or a JSON body
func (a *Controller) Confirm(c *fiber.Ctx) error {
	payload := new(TokenPayload)
	if c.Method() == fiber.MethodGet {
		if err := c.QueryParser(payload); err != nil {
			return a.badRequest(c, err)
		}
	} else if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	if err := payload.Validate(); err != nil {
		return a.fail(c, auth.ErrTokenInvalid)
	}

	account, err := a.accounts.ConfirmAccount(c.UserContext(), payload.Token)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(fiber.Map{"account": account.View()})
}

func (a *Controller) ResendConfirmation(c *fiber.Ctx) error {
	payload := new(EmailPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	if err := payload.Validate(); err != nil {
		return a.fail(c, err)
	}

	err := a.accounts.ResendConfirmation(c.UserContext(), payload.Email)
	return a.accepted(c, err)
}

func (a *Controller) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	if err := payload.Validate(); err != nil {
		return a.fail(c, auth.ErrInvalidCredentials)
	}

	pair, err := a.sessions.Login(c.UserContext(), auth.LoginInput{
		Email:     payload.Email,
		Password:  payload.Password,
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return a.fail(c, err)
	}
	return a.issued(c, pair)
}

// Refresh takes the refresh token from the body, falling back to the cookie
func (a *Controller) Refresh(c *fiber.Ctx) error {
	raw, err := a.refreshToken(c)
	if err != nil {
		return a.badRequest(c, err)
	}
	if raw == "" {
		return a.fail(c, auth.ErrUnauthenticated)
	}

	pair, err := a.sessions.Refresh(c.UserContext(), raw)
	if err != nil {
		if auth.KindOf(err) != auth.TextCodeStoreUnavailable {
			a.clearCookies(c)
		}
		return a.fail(c, err)
	}
	return a.issued(c, pair)
}

// Logout revokes the refresh token and clears cookies. It always answers 204.
func (a *Controller) Logout(c *fiber.Ctx) error {
	raw, err := a.refreshToken(c)
	if err == nil && raw != "" {
		if err := a.sessions.Logout(c.UserContext(), raw); err != nil {
			a.logger.Warn("logout failed", "error", err)
		}
	}
	a.clearCookies(c)
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *Controller) RequestPasswordReset(c *fiber.Ctx) error {
	payload := new(EmailPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	if err := payload.Validate(); err != nil {
		return a.fail(c, err)
	}

	err := a.accounts.RequestPasswordReset(c.UserContext(), payload.Email)
	return a.accepted(c, err)
}

func (a *Controller) ConfirmPasswordReset(c *fiber.Ctx) error {
	payload := new(PasswordResetConfirmPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	if err := payload.Validate(); err != nil {
		return a.fail(c, err)
	}

	if err := a.accounts.ConfirmPasswordReset(c.UserContext(), payload.Token, payload.Password); err != nil {
		return a.fail(c, err)
	}
	a.clearCookies(c)
	return c.JSON(messageResponse{Message: "password updated"})
}

func (a *Controller) Me(c *fiber.Ctx) error {
	accountID, ok := jwtware.AccountID(c)
	if !ok {
		return a.fail(c, auth.ErrUnauthenticated)
	}

	account, err := a.accounts.Current(c.UserContext(), accountID)
	if err != nil {
		if auth.IsKind(err, auth.TextCodeNotFound) {
			return a.fail(c, auth.ErrUnauthenticated)
		}
		return a.fail(c, err)
	}
	return c.JSON(fiber.Map{"account": account.View()})
}

func (a *Controller) Health(c *fiber.Ctx) error {
	for _, check := range a.health {
		if err := check(c.UserContext()); err != nil {
			a.logger.Error("health check failed", "error", err)
			return a.fail(c, auth.WrapKind(auth.ErrStoreUnavailable, err, "health check"))
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// accepted renders reset and resend requests identically whether or not
// the email belongs to an account.
func (a *Controller) accepted(c *fiber.Ctx, err error) error {
	switch auth.KindOf(err) {
	case "", auth.TextCodeNotFound:
	case auth.TextCodeMailUnavailable:
		a.logger.Error("mail delivery failed", "path", c.Path(), "error", err)
	default:
		return a.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(messageResponse{Message: msgMailAccepted})
}

func (a *Controller) issued(c *fiber.Ctx, pair auth.TokenPair) error {
	if a.cookies.Enabled {
		c.Cookie(a.cookie(a.cookies.AccessName, pair.AccessToken.Raw, "/", pair.AccessToken.ExpiresAt))
		c.Cookie(a.cookie(a.cookies.RefreshName, pair.RefreshToken.Raw, a.cookies.RefreshPath, pair.RefreshToken.ExpiresAt))
	}
	c.Set(fiber.HeaderCacheControl, "no-store")

	return c.JSON(tokenResponse{
		AccountID:        pair.AccountID,
		TokenType:        "Bearer",
		AccessToken:      pair.AccessToken.Raw,
		AccessExpiresAt:  pair.AccessToken.ExpiresAt,
		RefreshToken:     pair.RefreshToken.Raw,
		RefreshExpiresAt: pair.RefreshToken.ExpiresAt,
	})
}

func (a *Controller) refreshToken(c *fiber.Ctx) (string, error) {
	payload := new(TokenPayload)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(payload); err != nil {
			return "", err
		}
	}
	if payload.Token == "" && a.cookies.Enabled {
		payload.Token = c.Cookies(a.cookies.RefreshName)
	}
	return payload.Token, nil
}

func (a *Controller) cookie(name, value, path string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   a.cookies.Domain,
		Expires:  expires,
		Secure:   a.cookies.Secure,
		HTTPOnly: true,
		SameSite: a.cookies.SameSite,
	}
}

func (a *Controller) clearCookies(c *fiber.Ctx) {
	if !a.cookies.Enabled {
		return
	}
	past := a.now().Add(-time.Hour)
	c.Cookie(a.cookie(a.cookies.AccessName, "", "/", past))
	c.Cookie(a.cookie(a.cookies.RefreshName, "", a.cookies.RefreshPath, past))
}
