package app

import (
	"errors"
	"fmt"

	"worksite/cmd/internal/auth/session"
	"worksite/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup policy. Every violation is fatal.
func ValidateSecurityConfig(cfg Config, sess session.Config) error {
	switch cfg.Env {
	case EnvDevelopment, EnvProduction, "test", "staging":
	default:
		return fmt.Errorf("config: unknown WORKSITE_ENV %q", cfg.Env)
	}

	if !cfg.AuthEnabled && cfg.Env == EnvProduction {
		return errors.New("security policy: WORKSITE_AUTH_ENABLED=false is forbidden when WORKSITE_ENV=production")
	}

	if cfg.DatabaseURL == "" {
		return errors.New("config: WORKSITE_DATABASE_URL is required (users live in Postgres)")
	}

	switch cfg.SessionStore {
	case StorePostgres, StoreMemory:
	case StoreRedis:
		if cfg.RedisURL == "" {
			return errors.New("config: WORKSITE_SESSION_STORE=redis requires WORKSITE_REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown WORKSITE_SESSION_STORE %q", cfg.SessionStore)
	}

	if _, err := sess.Digester(); err != nil {
		return digestPolicyError(err)
	}

	return nil
}

// digestPolicyError rewrites refresh-token digest errors as policy messages
// and passes anything else through.
func digestPolicyError(err error) error {
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return fmt.Errorf("security policy: WORKSITE_REQUIRE_TOKEN_HMAC=true but WORKSITE_TOKEN_HMAC_KEY is missing: %w", err)
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return fmt.Errorf("security policy: WORKSITE_TOKEN_HMAC_KEY is too short (min 32 bytes): %w", err)
	default:
		return err
	}
}
