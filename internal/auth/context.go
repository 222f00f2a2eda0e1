package auth

import (
	"context"
)

type contextKey struct{}

// WithContext attaches the caller's AuthContext for downstream handlers.
func WithContext(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, auth)
}

// FromContext returns the AuthContext set by the middleware, or nil for
// an unauthenticated request.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(contextKey{}).(*AuthContext)
	return auth
}
