// Package app wires the worksite auth server runtime: config, logging,
// storage backends, HTTP routes and the session janitor.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"worksite/cmd/identity"
	authapi "worksite/cmd/internal/auth/api"
	"worksite/cmd/internal/auth/middleware"
	"worksite/cmd/internal/auth/session"
	"worksite/cmd/security/password"
)

// backends holds the shared connections and the session service built on them.
type backends struct {
	pool *pgxpool.Pool
	rdb  *redis.Client

	codec    *session.JWTCodec
	sessions *session.Service
}

func (b *backends) Close() {
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// newBackends validates config, opens Postgres (and Redis when selected) and
// builds the session service.
func newBackends(ctx context.Context, cfg Config, log Logger) (*backends, error) {
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, digestPolicyError(err)
	}
	if err := ValidateSecurityConfig(cfg, sessCfg); err != nil {
		return nil, err
	}
	digest, err := sessCfg.Digester()
	if err != nil {
		return nil, err
	}
	hasher, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	b := &backends{pool: pool}

	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	users, err := identity.NewPostgresUsers(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return nil, err
	}
	types, err := identity.NewPostgresUserTypes(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return nil, err
	}

	var store session.Store
	switch cfg.SessionStore {
	case StoreRedis:
		rdb, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		b.rdb = rdb
		store, err = session.NewRedisStore(rdb, digest, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
	case StoreMemory:
		log.Warn("sessions.store.memory", "note", "sessions are lost on restart")
		store = session.NewMemoryStore(digest)
	default:
		store, err = session.NewPostgresStore(pool, digest, cfg.DBSchema)
		if err != nil {
			return nil, err
		}
	}
	log.Info("sessions.store.ready", "kind", cfg.SessionStore, "keyed_digest", digest.Keyed())

	codec, err := session.NewJWTCodec(sessCfg)
	if err != nil {
		return nil, err
	}
	verifier, err := identity.NewCredentialVerifier(users, hasher, log)
	if err != nil {
		return nil, err
	}
	svc, err := session.NewService(sessCfg, session.Deps{
		Codec:     codec,
		Store:     store,
		Verifier:  verifier,
		Users:     users,
		UserTypes: types,
	})
	if err != nil {
		return nil, err
	}

	b.codec = codec
	b.sessions = svc
	ok = true
	return b, nil
}

// App is the worksite server runtime.
type App struct {
	cfg Config
	log Logger

	b *backends

	auth     *authapi.Handler
	registry *prometheus.Registry
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	b, err := newBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := newApp(cfg, log, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	return a, nil
}

func newApp(cfg Config, log Logger, b *backends) (*App, error) {
	var authn *middleware.Authenticator
	if cfg.AuthEnabled {
		var err error
		authn, err = middleware.NewAuthenticator(b.codec, log)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("auth.bypass.enabled", "env", cfg.Env)
		authn = middleware.NewBypassAuthenticator(log)
	}

	authCfg := authapi.LoadConfigFromEnv()
	var opts []authapi.HandlerOption

	if b.pool != nil {
		audit, err := authapi.NewAuditLog(b.pool, cfg.DBSchema)
		if err != nil {
			return nil, err
		}
		counter, err := authapi.NewAuditFailureCounter(b.pool, cfg.DBSchema)
		if err != nil {
			return nil, err
		}
		throttle, err := authapi.NewLoginThrottle(counter, authCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, authapi.WithAuditLog(audit), authapi.WithLoginThrottle(throttle))
	}

	var registry *prometheus.Registry
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := authapi.NewMetrics(registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, authapi.WithMetrics(m))
	}

	h, err := authapi.NewHandler(log, authCfg, b.sessions, authn, opts...)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		b:        b,
		auth:     h,
		registry: registry,
	}, nil
}

func (a *App) readyChecks() []readyCheck {
	var checks []readyCheck
	if a.b.pool != nil {
		pool := a.b.pool
		checks = append(checks, readyCheck{name: "db", ping: func(ctx context.Context) error {
			return PingDB(ctx, pool, 2*time.Second)
		}})
	}
	if a.b.rdb != nil {
		rdb := a.b.rdb
		checks = append(checks, readyCheck{name: "redis", ping: func(ctx context.Context) error {
			return PingRedis(ctx, rdb, 2*time.Second)
		}})
	}
	return checks
}

// Handler returns the full HTTP handler: routes wrapped with request logging.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	var metrics http.Handler
	if a.registry != nil {
		metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
	}
	registerHTTP(mux, a.log, a.readyChecks(), a.auth, metrics)

	return WithRequestLogging(mux, a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.b.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	if a.cfg.PurgeInterval > 0 {
		stop, err := StartJanitor(a.log, a.b.sessions, a.cfg.PurgeInterval)
		if err != nil {
			return err
		}
		defer stop()
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"env", a.cfg.Env,
		"session_store", a.cfg.SessionStore,
		"auth_enabled", a.cfg.AuthEnabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
