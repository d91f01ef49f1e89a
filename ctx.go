package auth

import "context"

var accountIDCtxKey = &contextKey{"account_id"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithAccountID stores the authorized account id in the context
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDCtxKey, accountID)
}

// AccountIDFromContext returns the authorized account id, if any
func AccountIDFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(accountIDCtxKey).(string)
	return raw, ok && raw != ""
}

// WithClaimsContext stores verified access claims in the context
func WithClaimsContext(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFromContext returns the verified access claims, if any
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(Claims)
	return raw, ok
}
