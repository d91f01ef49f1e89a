package auth

// AuthGuard resolves access tokens to account ids. It is stateless:
// revoking a refresh token does not invalidate access tokens already out.
type AuthGuard struct {
	codec  *TokenCodec
	logger Logger
}

// NewAuthGuard creates a guard verifying with codec
func NewAuthGuard(codec *TokenCodec, logger Logger) *AuthGuard {
	return &AuthGuard{codec: codec, logger: normalizeLogger(logger)}
}

// Authorize returns the account id of a valid access token. Every
// failure is reported as ErrUnauthenticated.
func (g *AuthGuard) Authorize(rawToken string) (string, error) {
	claims, err := g.AuthorizeClaims(rawToken)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// AuthorizeClaims is Authorize returning the full verified claims
func (g *AuthGuard) AuthorizeClaims(rawToken string) (Claims, error) {
	if rawToken == "" {
		return Claims{}, ErrUnauthenticated
	}
	claims, err := g.codec.Verify(rawToken, TokenAccess)
	if err != nil {
		g.logger.Debug("guard rejected token", "reason", KindOf(err))
		return Claims{}, ErrUnauthenticated
	}
	return claims, nil
}
