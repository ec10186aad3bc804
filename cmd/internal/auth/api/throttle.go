package authapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"worksite/cmd/identity"
)

// FailureCounter counts recent failed logins.
type FailureCounter interface {
	LoginFailuresByIP(ctx context.Context, ip net.IP, since time.Time) (int, error)
	LoginFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error)
}

// Querier is the subset of *pgxpool.Pool the failure counter needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuditFailureCounter counts auth.login.failed rows in <schema>.audit_log.
type AuditFailureCounter struct {
	db    Querier
	table string
}

// NewAuditFailureCounter reads failures recorded by AuditLog.
func NewAuditFailureCounter(db Querier, schema string) (*AuditFailureCounter, error) {
	if db == nil {
		return nil, errors.New("auth: nil failure counter db")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.ValidSchema(schema) {
		return nil, fmt.Errorf("auth: invalid schema identifier %q", schema)
	}
	return &AuditFailureCounter{db: db, table: pgx.Identifier{schema, "audit_log"}.Sanitize()}, nil
}

func (c *AuditFailureCounter) LoginFailuresByIP(ctx context.Context, ip net.IP, since time.Time) (int, error) {
	var n int
	err := c.db.QueryRow(ctx, `
		SELECT count(*)
		FROM `+c.table+`
		WHERE action = 'auth.login.failed'
		  AND ip = $1
		  AND created_at >= $2
	`, ip.String(), since).Scan(&n)
	return n, err
}

func (c *AuditFailureCounter) LoginFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := c.db.QueryRow(ctx, `
		SELECT count(*)
		FROM `+c.table+`
		WHERE action = 'auth.login.failed'
		  AND meta->>'email' = $1
		  AND created_at >= $2
	`, email, since).Scan(&n)
	return n, err
}

// LoginThrottle blocks logins from an IP or for an email with too many
// recent failures. A zero max disables that dimension.
type LoginThrottle struct {
	counter FailureCounter

	ipMax    int
	emailMax int
	window   time.Duration
}

// NewLoginThrottle builds a throttle from cfg.
func NewLoginThrottle(counter FailureCounter, cfg Config) (*LoginThrottle, error) {
	if counter == nil {
		return nil, errors.New("auth: nil failure counter")
	}
	window := cfg.LoginThrottleWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &LoginThrottle{
		counter:  counter,
		ipMax:    cfg.LoginIPMax,
		emailMax: cfg.LoginEmailMax,
		window:   window,
	}, nil
}

// check reports whether the attempt is blocked and for how long.
func (t *LoginThrottle) check(ctx context.Context, ip net.IP, email string, now time.Time) (bool, time.Duration, error) {
	if t == nil {
		return false, 0, nil
	}
	since := now.Add(-t.window)

	if ip != nil && t.ipMax > 0 {
		n, err := t.counter.LoginFailuresByIP(ctx, ip, since)
		if err != nil {
			return false, 0, err
		}
		if n >= t.ipMax {
			return true, t.window, nil
		}
	}

	if email != "" && t.emailMax > 0 {
		n, err := t.counter.LoginFailuresByEmail(ctx, email, since)
		if err != nil {
			return false, 0, err
		}
		if n >= t.emailMax {
			return true, t.window, nil
		}
	}

	return false, 0, nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
