// Package pgtest provides Postgres fixtures for integration tests.
//
// Tests call Pool, which skips unless WORKSITE_DATABASE_URL is set. Outside
// CI an unreachable database also skips, keeping local runs fast.
package pgtest

import (
	"context"
	_ "embed"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnvDatabaseURL names the variable that enables integration tests.
const EnvDatabaseURL = "WORKSITE_DATABASE_URL"

// Schema is the DDL the stores expect, applied idempotently by Pool.
//
//go:embed schema.sql
var Schema string

// Pool returns a small pool against WORKSITE_DATABASE_URL with Schema applied.
// The pool is closed at test cleanup.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv(EnvDatabaseURL)
	if dbURL == "" {
		t.Skip(EnvDatabaseURL + " is not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		t.Fatalf("pgxpool.ParseConfig: %v", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pgxpool.NewWithConfig: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if unreachable(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("pool.Ping: %v", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		t.Fatalf("apply schema: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

func unreachable(err error) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "deadline exceeded", "timeout", "dial tcp", "no such host"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
