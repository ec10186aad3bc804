package middleware

import (
	"context"

	"worksite/cmd/internal/auth/session"
)

type identityContextKey struct{}

type attached struct {
	claims session.Claims
	bypass bool
}

// WithIdentity returns a copy of ctx carrying claims.
func WithIdentity(ctx context.Context, claims session.Claims) context.Context {
	return context.WithValue(ctx, identityContextKey{}, attached{claims: claims})
}

func withBypassIdentity(ctx context.Context, claims session.Claims) context.Context {
	return context.WithValue(ctx, identityContextKey{}, attached{claims: claims, bypass: true})
}

// IdentityFromContext returns the claims attached by the authenticator.
func IdentityFromContext(ctx context.Context) (session.Claims, bool) {
	a, ok := ctx.Value(identityContextKey{}).(attached)
	if !ok {
		return session.Claims{}, false
	}
	return a.claims, true
}

// IsBypass reports whether the attached identity came from the development bypass.
func IsBypass(ctx context.Context) bool {
	a, ok := ctx.Value(identityContextKey{}).(attached)
	return ok && a.bypass
}
