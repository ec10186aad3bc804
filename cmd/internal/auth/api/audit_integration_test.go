package authapi

import (
	"context"
	"net"
	"testing"
	"time"

	"worksite/cmd/identity/ids"
	"worksite/cmd/internal/pgtest"
)

func TestAuditLog_FailureCounterRoundTrip(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()

	audit, err := NewAuditLog(pool, "")
	if err != nil {
		t.Fatalf("NewAuditLog: %v", err)
	}
	counter, err := NewAuditFailureCounter(pool, "")
	if err != nil {
		t.Fatalf("NewAuditFailureCounter: %v", err)
	}

	// Unique per run so earlier rows never count.
	suffix, err := ids.NewULID(time.Now())
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	email := "throttle-" + suffix + "@obra.example"
	ip := net.ParseIP("198.51.100.77")
	since := time.Now().Add(-time.Minute)

	before, err := counter.LoginFailuresByIP(ctx, ip, since)
	if err != nil {
		t.Fatalf("LoginFailuresByIP: %v", err)
	}

	for i := 0; i < 2; i++ {
		meta := map[string]any{"email": email, "reason": "bad_credentials"}
		if err := audit.insert(ctx, "auth.login.failed", nil, ip, "test", meta); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	uid := "01J0000000000000000000ANA0"
	if err := audit.insert(ctx, "auth.login.success", &uid, ip, "test", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	byEmail, err := counter.LoginFailuresByEmail(ctx, email, since)
	if err != nil {
		t.Fatalf("LoginFailuresByEmail: %v", err)
	}
	if byEmail != 2 {
		t.Fatalf("byEmail=%d want=2", byEmail)
	}

	after, err := counter.LoginFailuresByIP(ctx, ip, since)
	if err != nil {
		t.Fatalf("LoginFailuresByIP: %v", err)
	}
	if after-before != 2 {
		t.Fatalf("ip failures grew by %d want=2", after-before)
	}
}
