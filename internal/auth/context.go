package auth

import "context"

// claimsKey is unexported so only this package can attach identity to a
// context; handlers read it back through FromContext.
type claimsKey struct{}

// WithClaims returns a child context carrying the caller's verified identity.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the identity attached by the middleware, if any.
// Handlers treat a missing identity as an unauthenticated request.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}
