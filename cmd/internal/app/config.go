package app

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Profiles.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Session store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	SessionStore  string
	RedisURL      string
	RedisPrefix   string
	PurgeInterval time.Duration

	MetricsEnabled bool

	// AuthEnabled=false swaps the authenticator for the development bypass.
	AuthEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		Env:      strings.ToLower(EnvString("WORKSITE_ENV", EnvDevelopment)),
		HTTPAddr: EnvString("WORKSITE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("WORKSITE_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("WORKSITE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WORKSITE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WORKSITE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WORKSITE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("WORKSITE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("WORKSITE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("WORKSITE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("WORKSITE_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("WORKSITE_DB_SCHEMA", "worksite"),

		SessionStore:  strings.ToLower(EnvString("WORKSITE_SESSION_STORE", StorePostgres)),
		RedisURL:      EnvString("WORKSITE_REDIS_URL", ""),
		RedisPrefix:   EnvString("WORKSITE_REDIS_PREFIX", "worksite"),
		PurgeInterval: EnvDuration("WORKSITE_SESSION_PURGE_INTERVAL", 0),

		MetricsEnabled: EnvBool("WORKSITE_METRICS_ENABLED", true),

		AuthEnabled: EnvBool("WORKSITE_AUTH_ENABLED", true),
	}
}

// LoadDotEnv loads ./.env into the process environment unless the profile in
// the real environment is production. Variables already set are kept; a
// missing file is not an error.
func LoadDotEnv(files ...string) error {
	if strings.EqualFold(EnvString("WORKSITE_ENV", EnvDevelopment), EnvProduction) {
		return nil
	}
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
