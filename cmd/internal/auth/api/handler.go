package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"worksite/cmd/identity"
	"worksite/cmd/internal/auth/middleware"
	"worksite/cmd/internal/auth/session"
)

// Sessions is the session lifecycle the handler drives. *session.Service implements it.
type Sessions interface {
	Login(ctx context.Context, email, password string) (session.Issued, error)
	Refresh(ctx context.Context, refreshToken string) (session.Refreshed, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// Client-facing messages.
const (
	msgInvalidCredentials  = "Invalid credentials"
	msgInvalidRefreshToken = "Invalid refresh token"
	msgLoggedOut           = "Logged out"
	msgLoggedOutAll        = "Logged out from all sessions"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions Sessions
	authn    *middleware.Authenticator

	audit    *AuditLog
	metrics  *Metrics
	throttle *LoginThrottle
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithAuditLog records auth events through a.
func WithAuditLog(a *AuditLog) HandlerOption {
	return func(h *Handler) {
		if h == nil || a == nil {
			return
		}
		h.audit = a
	}
}

// WithMetrics records per-operation counters and latencies.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) {
		if h == nil || m == nil {
			return
		}
		h.metrics = m
	}
}

// WithLoginThrottle rejects logins with 429 once t reports too many failures.
func WithLoginThrottle(t *LoginThrottle) HandlerOption {
	return func(h *Handler) {
		if h == nil || t == nil {
			return
		}
		h.throttle = t
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions Sessions, authn *middleware.Authenticator, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if authn == nil {
		return nil, errors.New("auth: nil authenticator")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		authn:    authn,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	protect := h.authn.Middleware
	admin := middleware.RequireUserTypes(h.cfg.AdminUserTypes...)

	mux.Handle("/auth/login", allowMethods(http.HandlerFunc(h.handleLogin), http.MethodPost))
	mux.Handle("/auth/refresh", allowMethods(http.HandlerFunc(h.handleRefresh), http.MethodPost))
	mux.Handle("/auth/logout", allowMethods(http.HandlerFunc(h.handleLogout), http.MethodPost))
	mux.Handle("/auth/logout_all", allowMethods(protect(http.HandlerFunc(h.handleLogoutAll)), http.MethodPost))
	mux.Handle("/auth/me", allowMethods(protect(http.HandlerFunc(h.handleMe)), http.MethodGet))
	mux.Handle("/admin/sessions/purge", allowMethods(protect(admin(http.HandlerFunc(h.handlePurge))), http.MethodPost))
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.metrics.observe("login", resultFailure, start)
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := identity.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		h.metrics.observe("login", resultFailure, start)
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if blocked, retryAfter, err := h.throttle.check(ctx, ip, email, start); err != nil {
		h.log.Error("auth.login.throttle.fail", "err", err)
		h.metrics.observe("login", resultError, start)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.log.Warn("auth.login.rate_limited", "retry_after", retryAfter.String())
		h.auditLoginRateLimited(ctx, ip, ua, email, retryAfter)
		h.metrics.observe("login", resultFailure, start)
		writeRateLimited(w, retryAfter)
		return
	}

	issued, err := h.sessions.Login(ctx, email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAuthentication):
			reason := session.FailureReason(err)
			h.log.Warn("auth.login.fail", "reason", reason)
			h.auditLoginFailed(ctx, ip, ua, email, reason)
			h.metrics.observe("login", resultFailure, start)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", msgInvalidCredentials)
		case errors.Is(err, session.ErrInvariantViolation):
			h.log.Error("auth.login.invariant", "err", err)
			h.metrics.observe("login", resultError, start)
			writeInternal(w)
		default:
			h.log.Error("auth.login.fail", "err", err)
			h.metrics.observe("login", resultError, start)
			writeInternal(w)
		}
		return
	}

	h.auditLoginSuccess(ctx, issued.User.ID, ip, ua)
	h.metrics.observe("login", resultSuccess, start)

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		User:         toUserResponse(issued),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.metrics.observe("refresh", resultFailure, start)
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	out, err := h.sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrAuthentication) {
			reason := session.FailureReason(err)
			h.log.Info("auth.refresh.fail", "reason", reason)
			h.auditRefreshFailed(ctx, ip, ua, reason)
			h.metrics.observe("refresh", resultFailure, start)
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", msgInvalidRefreshToken)
			return
		}
		h.log.Error("auth.refresh.fail", "err", err)
		h.metrics.observe("refresh", resultError, start)
		writeInternal(w)
		return
	}

	h.auditRefreshSuccess(ctx, out.Claims.UserID, out.RefreshToken != "", ip, ua)
	h.metrics.observe("refresh", resultSuccess, start)

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
	})
}

// handleLogout always answers 200; a body that cannot be decoded is treated
// as carrying no token.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			req = logoutRequest{}
		}
	}

	ctx := r.Context()
	result := resultSuccess
	if err := h.sessions.Logout(ctx, req.RefreshToken); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		result = resultError
	} else {
		h.auditLogout(ctx, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	}
	h.metrics.observe("logout", result, start)

	writeJSON(w, http.StatusOK, messageResponse{Message: msgLoggedOut})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	claims, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", middleware.MsgNoToken)
		return
	}

	ctx := r.Context()
	n, err := h.sessions.LogoutAll(ctx, claims.UserID)
	if err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		h.metrics.observe("logout_all", resultError, start)
		writeInternal(w)
		return
	}

	h.auditLogoutAll(ctx, claims.UserID, n, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.metrics.observe("logout_all", resultSuccess, start)
	writeJSON(w, http.StatusOK, logoutAllResponse{Message: msgLoggedOutAll, Revoked: n})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", middleware.MsgNoToken)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	claims, _ := middleware.IdentityFromContext(r.Context())

	ctx := r.Context()
	n, err := h.sessions.PurgeExpired(ctx)
	if err != nil {
		h.log.Error("admin.sessions.purge.fail", "err", err)
		h.metrics.observe("purge", resultError, start)
		writeInternal(w)
		return
	}

	h.log.Info("admin.sessions.purge.done", "purged", n, "user_id", claims.UserID)
	h.auditPurge(ctx, claims.UserID, n, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.metrics.observe("purge", resultSuccess, start)
	writeJSON(w, http.StatusOK, purgeResponse{Purged: n})
}
