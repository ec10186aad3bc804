package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// ErrUsage reports an unknown subcommand.
var ErrUsage = errors.New("usage")

const usage = `usage: worksite [command]

commands:
  serve            run the HTTP server (default)
  purge-sessions   delete expired refresh sessions, then exit
  hash-password    read a password from the terminal and print its Argon2id hash
`

// Run is the CLI entrypoint used by cmd/worksite.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := LoadDotEnv(); err != nil {
		return fmt.Errorf("dotenv: %w", err)
	}

	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve":
		return serve(ctx)
	case "purge-sessions":
		return purgeSessions(ctx, stdout)
	case "hash-password":
		return hashPassword(stdout, stderr)
	case "help", "-h", "--help":
		_, _ = io.WriteString(stdout, usage)
		return nil
	default:
		_, _ = io.WriteString(stderr, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func serve(ctx context.Context) error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func purgeSessions(ctx context.Context, out io.Writer) error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	b, err := newBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	n, err := b.sessions.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	log.Info("sessions.purge.ok", "purged", n)
	_, err = fmt.Fprintf(out, "purged %d sessions\n", n)
	return err
}
