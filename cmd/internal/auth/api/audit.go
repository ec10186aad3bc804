package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"worksite/cmd/identity"
)

// Execer is the subset of *pgxpool.Pool the audit log needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLog appends auth events to <schema>.audit_log.
type AuditLog struct {
	db    Execer
	table string
}

// NewAuditLog returns an AuditLog writing through db. schema defaults to
// identity.DefaultSchema.
func NewAuditLog(db Execer, schema string) (*AuditLog, error) {
	if db == nil {
		return nil, errors.New("auth: nil audit db")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.ValidSchema(schema) {
		return nil, fmt.Errorf("auth: invalid schema identifier %q", schema)
	}
	return &AuditLog{db: db, table: pgx.Identifier{schema, "audit_log"}.Sanitize()}, nil
}

func (a *AuditLog) insert(ctx context.Context, action string, userID *string, ip net.IP, ua string, meta map[string]any) error {
	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.db.Exec(ctx, `
		INSERT INTO `+a.table+` (
			user_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, now(), $3, $4, $5::jsonb)
	`, userID, action, ipVal, trimOrNil(ua), metaVal)
	return err
}

func (h *Handler) auditLoginFailed(ctx context.Context, ip net.IP, ua, email, reason string) {
	h.insertAudit(ctx, "auth.login.failed", nil, ip, ua, map[string]any{
		"email":  email,
		"reason": reason,
	})
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, ua, email string, retryAfter time.Duration) {
	h.insertAudit(ctx, "auth.login.rate_limited", nil, ip, ua, map[string]any{
		"email":               email,
		"retry_after_seconds": int64(retryAfter.Seconds()),
	})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.login.success", &userID, ip, ua, nil)
}

func (h *Handler) auditRefreshFailed(ctx context.Context, ip net.IP, ua, reason string) {
	h.insertAudit(ctx, "auth.refresh.failed", nil, ip, ua, map[string]any{
		"reason": reason,
	})
}

func (h *Handler) auditRefreshSuccess(ctx context.Context, userID string, rotated bool, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.refresh.success", &userID, ip, ua, map[string]any{
		"rotated": rotated,
	})
}

func (h *Handler) auditLogout(ctx context.Context, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.logout", nil, ip, ua, nil)
}

func (h *Handler) auditLogoutAll(ctx context.Context, userID string, revoked int64, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.logout_all", &userID, ip, ua, map[string]any{
		"revoked": revoked,
	})
}

func (h *Handler) auditPurge(ctx context.Context, userID string, purged int64, ip net.IP, ua string) {
	h.insertAudit(ctx, "admin.sessions.purge", &userID, ip, ua, map[string]any{
		"purged": purged,
	})
}

func (h *Handler) insertAudit(ctx context.Context, action string, userID *string, ip net.IP, ua string, meta map[string]any) {
	if h == nil || h.audit == nil {
		return
	}
	if err := h.audit.insert(ctx, action, userID, ip, ua, meta); err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
