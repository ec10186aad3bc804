package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// AdminUserTypes may call the admin endpoints.
	AdminUserTypes []string

	// Login throttling over recent failures; 0 disables a dimension.
	LoginIPMax          int
	LoginEmailMax       int
	LoginThrottleWindow time.Duration
}

// LoadConfigFromEnv loads auth API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:     envBool("WORKSITE_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("WORKSITE_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		AdminUserTypes: envList("WORKSITE_ADMIN_USER_TYPES", []string{"admin"}),

		LoginIPMax:          envCount("WORKSITE_AUTH_LOGIN_IP_MAX", 20),
		LoginEmailMax:       envCount("WORKSITE_AUTH_LOGIN_EMAIL_MAX", 5),
		LoginThrottleWindow: envDuration("WORKSITE_AUTH_LOGIN_WINDOW", 5*time.Minute),
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// envCount accepts 0.
func envCount(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
