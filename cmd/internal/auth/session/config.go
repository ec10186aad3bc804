package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"worksite/cmd/security/token"
)

// MinSecretBytes is the shortest accepted HS256 signing secret.
const MinSecretBytes = 32

// Config is the session subsystem configuration. It is loaded once at
// startup and passed to NewJWTCodec, the stores and NewService.
type Config struct {
	// Issuer is the "iss" claim on both token families.
	Issuer string

	// AccessSecret and RefreshSecret sign access and refresh tokens. They
	// must differ so a leak of one cannot forge the other.
	AccessSecret  string
	RefreshSecret string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ClockSkew is the leeway applied to exp/iat checks: a token verifies
	// until exp+ClockSkew.
	ClockSkew time.Duration

	// RotateRefreshTokens makes every refresh revoke the presented token and
	// return a replacement.
	RotateRefreshTokens bool

	// TokenHMACKey keys refresh-token digests; empty selects SHA-256.
	TokenHMACKey     string
	RequireTokenHMAC bool
}

// DefaultConfig returns defaults without secrets: 30m access, 90d refresh.
func DefaultConfig() Config {
	return Config{
		Issuer:          "worksite",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 90 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration.
//
// Required:
//   - WORKSITE_AUTH_ACCESS_SECRET
//   - WORKSITE_AUTH_REFRESH_SECRET
//
// Optional:
//   - WORKSITE_AUTH_ISSUER
//   - WORKSITE_AUTH_ACCESS_TTL, WORKSITE_AUTH_REFRESH_TTL, WORKSITE_AUTH_CLOCK_SKEW
//   - WORKSITE_AUTH_ROTATE_REFRESH
//   - WORKSITE_TOKEN_HMAC_KEY, WORKSITE_REQUIRE_TOKEN_HMAC
//
// Any invalid or missing value yields an error wrapping ErrConfig that names
// the variable.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("WORKSITE_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key       string
		dst       *time.Duration
		allowZero bool
	}{
		{key: "WORKSITE_AUTH_ACCESS_TTL", dst: &cfg.AccessTokenTTL},
		{key: "WORKSITE_AUTH_REFRESH_TTL", dst: &cfg.RefreshTokenTTL},
		{key: "WORKSITE_AUTH_CLOCK_SKEW", dst: &cfg.ClockSkew, allowZero: true},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowZero) {
			return Config{}, fmt.Errorf("%w: %s: invalid duration %q", ErrConfig, d.key, v)
		}
		*d.dst = parsed
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{key: "WORKSITE_AUTH_ROTATE_REFRESH", dst: &cfg.RotateRefreshTokens},
		{key: "WORKSITE_REQUIRE_TOKEN_HMAC", dst: &cfg.RequireTokenHMAC},
	}
	for _, b := range bools {
		v := strings.TrimSpace(os.Getenv(b.key))
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: invalid bool %q", ErrConfig, b.key, v)
		}
		*b.dst = parsed
	}

	cfg.AccessSecret = os.Getenv("WORKSITE_AUTH_ACCESS_SECRET")
	cfg.RefreshSecret = os.Getenv("WORKSITE_AUTH_REFRESH_SECRET")
	cfg.TokenHMACKey = os.Getenv("WORKSITE_TOKEN_HMAC_KEY")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks secrets, TTLs and the digest policy. Errors wrap ErrConfig
// and name the offending variable; digest policy errors also wrap the token
// package sentinel.
func (c Config) Validate() error {
	if len(c.AccessSecret) < MinSecretBytes {
		return fmt.Errorf("%w: WORKSITE_AUTH_ACCESS_SECRET must be >= %d bytes", ErrConfig, MinSecretBytes)
	}
	if len(c.RefreshSecret) < MinSecretBytes {
		return fmt.Errorf("%w: WORKSITE_AUTH_REFRESH_SECRET must be >= %d bytes", ErrConfig, MinSecretBytes)
	}
	if c.AccessSecret == c.RefreshSecret {
		return fmt.Errorf("%w: WORKSITE_AUTH_ACCESS_SECRET and WORKSITE_AUTH_REFRESH_SECRET must differ", ErrConfig)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("%w: WORKSITE_AUTH_ACCESS_TTL must be positive", ErrConfig)
	}
	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("%w: WORKSITE_AUTH_REFRESH_TTL must be positive", ErrConfig)
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("%w: WORKSITE_AUTH_CLOCK_SKEW must not be negative", ErrConfig)
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		return fmt.Errorf("%w: WORKSITE_AUTH_REFRESH_TTL must be >= WORKSITE_AUTH_ACCESS_TTL", ErrConfig)
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("%w: WORKSITE_AUTH_ISSUER is empty", ErrConfig)
	}
	if _, err := c.Digester(); err != nil {
		return fmt.Errorf("%w: WORKSITE_TOKEN_HMAC_KEY: %w", ErrConfig, err)
	}
	return nil
}

// Digester returns the refresh-token digester selected by TokenHMACKey and
// RequireTokenHMAC.
func (c Config) Digester() (token.Digester, error) {
	if c.RequireTokenHMAC {
		return token.RequireHMAC(c.TokenHMACKey)
	}
	return token.NewDigester(c.TokenHMACKey)
}
