package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"worksite/cmd/internal/auth/session"
)

// Client-facing messages for authentication failures.
const (
	MsgNoToken      = "No token provided"
	MsgTokenExpired = "Token expired"
	MsgInvalidToken = "Invalid token"
)

// ErrNoToken means the request carried no usable bearer token.
var ErrNoToken = errors.New("no token provided")

// AccessVerifier verifies access tokens. session.JWTCodec implements it.
type AccessVerifier interface {
	VerifyAccessToken(token string, now time.Time) (session.Claims, error)
}

// BypassClaims is the identity attached by the development bypass.
var BypassClaims = session.Claims{
	UserID:       "dev-bypass",
	Email:        "dev@localhost",
	UserTypeName: "bypass",
	Permissions:  session.Permissions{ApproveMeasurement: true},
}

// Authenticator verifies bearer tokens and attaches claims to the request.
type Authenticator struct {
	verifier AccessVerifier
	log      *slog.Logger
	now      func() time.Time
	bypass   bool
}

// NewAuthenticator returns an Authenticator backed by verifier.
func NewAuthenticator(verifier AccessVerifier, log *slog.Logger) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("middleware: nil access verifier")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{
		verifier: verifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewBypassAuthenticator returns an Authenticator that never reads the
// Authorization header and attaches BypassClaims to every request.
// It must only be built for development profiles.
func NewBypassAuthenticator(log *slog.Logger) *Authenticator {
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{log: log, bypass: true}
}

// Bypass reports whether a is the development bypass.
func (a *Authenticator) Bypass() bool { return a.bypass }

// Authenticate verifies the bearer token on r. Failures are ErrNoToken,
// session.ErrTokenExpired, session.ErrTokenInvalid or an unexpected error.
func (a *Authenticator) Authenticate(r *http.Request) (session.Claims, error) {
	if a.bypass {
		return BypassClaims, nil
	}
	tok := BearerToken(r)
	if tok == "" {
		return session.Claims{}, ErrNoToken
	}
	return a.verifier.VerifyAccessToken(tok, a.now())
}

// Middleware rejects unauthenticated requests and passes the rest to next
// with their claims attached.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authenticate(r)
		if err != nil {
			switch {
			case errors.Is(err, ErrNoToken):
				writeError(w, http.StatusUnauthorized, "unauthorized", MsgNoToken)
			case errors.Is(err, session.ErrTokenExpired):
				writeError(w, http.StatusUnauthorized, "token_expired", MsgTokenExpired)
			case errors.Is(err, session.ErrTokenInvalid):
				writeError(w, http.StatusUnauthorized, "invalid_token", MsgInvalidToken)
			default:
				a.log.Error("auth.middleware.fail", "err", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			}
			return
		}

		var ctx context.Context
		if a.bypass {
			ctx = withBypassIdentity(r.Context(), claims)
		} else {
			ctx = WithIdentity(r.Context(), claims)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is case-insensitive; anything else yields "".
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
