package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrAuthorization means the identity is missing or its user type is not allowed.
var ErrAuthorization = errors.New("forbidden")

// MsgForbidden is the client-facing authorization failure.
const MsgForbidden = "Forbidden"

// Authorize checks the identity on ctx against allowed user-type names,
// compared case-insensitively. The development bypass identity is always
// allowed.
func Authorize(ctx context.Context, allowed ...string) error {
	claims, ok := IdentityFromContext(ctx)
	if !ok {
		return ErrAuthorization
	}
	if IsBypass(ctx) {
		return nil
	}
	name := strings.TrimSpace(claims.UserTypeName)
	for _, a := range allowed {
		if name != "" && strings.EqualFold(name, strings.TrimSpace(a)) {
			return nil
		}
	}
	return ErrAuthorization
}

// RequireUserTypes returns middleware that answers 403 unless Authorize
// passes for allowed. It must run after Authenticator.Middleware.
func RequireUserTypes(allowed ...string) func(http.Handler) http.Handler {
	list := append([]string(nil), allowed...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Authorize(r.Context(), list...); err != nil {
				writeError(w, http.StatusForbidden, "forbidden", MsgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
