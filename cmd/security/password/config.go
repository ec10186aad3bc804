package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params is the Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds what callers may hash. Verification does not apply it, so
// users created under an older policy can still sign in.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config bundles hashing cost and input policy.
type Config struct {
	Params Params
	Policy Policy
}

// DefaultConfig returns the production baseline: 64 MiB, 3 passes, up to 4 lanes.
func DefaultConfig() Config {
	lanes := runtime.NumCPU()
	if lanes < 1 {
		lanes = 1
	}
	if lanes > 4 {
		lanes = 4
	}

	return Config{
		Params: Params{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(lanes), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// FromEnv overlays WORKSITE_PASSWORD_* and WORKSITE_ARGON2_* variables on DefaultConfig.
//
//   - WORKSITE_PASSWORD_MIN_LEN, WORKSITE_PASSWORD_MAX_LEN
//   - WORKSITE_PASSWORD_REJECT_VERY_WEAK
//   - WORKSITE_ARGON2_MEMORY_KIB, WORKSITE_ARGON2_ITERATIONS, WORKSITE_ARGON2_PARALLELISM
//   - WORKSITE_ARGON2_SALT_LEN, WORKSITE_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	var err error

	if cfg.Policy.MinLength, err = envIntRange("WORKSITE_PASSWORD_MIN_LEN", cfg.Policy.MinLength, 1, 1024); err != nil {
		return Config{}, err
	}
	if cfg.Policy.MaxLength, err = envIntRange("WORKSITE_PASSWORD_MAX_LEN", cfg.Policy.MaxLength, 1, 4096); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("WORKSITE_PASSWORD_REJECT_VERY_WEAK"); strings.TrimSpace(v) != "" {
		b, perr := strconv.ParseBool(strings.TrimSpace(v))
		if perr != nil {
			return Config{}, fmt.Errorf("WORKSITE_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	mem, err := envIntRange("WORKSITE_ARGON2_MEMORY_KIB", int(cfg.Params.MemoryKiB), 8*1024, 1024*1024)
	if err != nil {
		return Config{}, err
	}
	iters, err := envIntRange("WORKSITE_ARGON2_ITERATIONS", int(cfg.Params.Iterations), 1, 20)
	if err != nil {
		return Config{}, err
	}
	lanes, err := envIntRange("WORKSITE_ARGON2_PARALLELISM", int(cfg.Params.Parallelism), 1, math.MaxUint8)
	if err != nil {
		return Config{}, err
	}
	salt, err := envIntRange("WORKSITE_ARGON2_SALT_LEN", int(cfg.Params.SaltLength), 8, 64)
	if err != nil {
		return Config{}, err
	}
	key, err := envIntRange("WORKSITE_ARGON2_KEY_LEN", int(cfg.Params.KeyLength), 16, 64)
	if err != nil {
		return Config{}, err
	}

	cfg.Params = Params{
		MemoryKiB:   uint32(mem),   // #nosec G115 -- range checked above.
		Iterations:  uint32(iters), // #nosec G115 -- range checked above.
		Parallelism: uint8(lanes),  // #nosec G115 -- range checked above.
		SaltLength:  uint32(salt),  // #nosec G115 -- range checked above.
		KeyLength:   uint32(key),   // #nosec G115 -- range checked above.
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}

	return cfg, nil
}

func envIntRange(key string, def, minVal, maxVal int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer", key)
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("%s: out of range [%d..%d]", key, minVal, maxVal)
	}
	return n, nil
}
