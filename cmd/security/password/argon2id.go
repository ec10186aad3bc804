package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	phcAlgorithm = "argon2id"
	phcVersion   = argon2.Version
)

var b64 = base64.RawStdEncoding

// phc is a parsed Argon2id PHC string.
type phc struct {
	params Params
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, phcVersion,
		p.params.MemoryKiB, p.params.Iterations, p.params.Parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

// Hash validates password against the policy and returns its PHC-encoded Argon2id hash.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}
	return c.HashRaw(password)
}

// HashRaw hashes without applying the policy. It backs timing-equalization
// dummies, never user-chosen passwords.
func (c Config) HashRaw(password string) (string, error) {
	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt,
		c.Params.Iterations, c.Params.MemoryKiB, c.Params.Parallelism, c.Params.KeyLength)

	return phc{params: c.Params, salt: salt, key: key}.String(), nil
}

// Verify reports whether password matches encoded.
// A malformed or out-of-bounds hash yields (false, ErrInvalidHash).
func (c Config) Verify(encoded, password string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !c.acceptable(h.params) {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey([]byte(password), h.salt,
		h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism,
		uint32(len(h.key))) // #nosec G115 -- bounded by acceptable().

	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// acceptable rejects stored hashes whose cost is far beyond ours; older,
// cheaper hashes remain verifiable.
func (c Config) acceptable(p Params) bool {
	switch {
	case p.MemoryKiB > c.Params.MemoryKiB*2:
		return false
	case p.Iterations > c.Params.Iterations*2:
		return false
	case uint32(p.Parallelism) > uint32(c.Params.Parallelism)*2:
		return false
	case p.SaltLength < 8 || p.SaltLength > 64:
		return false
	case p.KeyLength < 16 || p.KeyLength > 128:
		return false
	}
	return true
}

func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != phcAlgorithm {
		return phc{}, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(phcVersion) {
		return phc{}, ErrInvalidHash
	}

	var mem, iters, lanes uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &lanes); err != nil {
		return phc{}, ErrInvalidHash
	}
	if mem == 0 || iters == 0 || lanes == 0 || lanes > 255 {
		return phc{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return phc{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return phc{}, ErrInvalidHash
	}

	return phc{
		params: Params{
			MemoryKiB:   mem,
			Iterations:  iters,
			Parallelism: uint8(lanes),      // #nosec G115 -- checked <= 255.
			SaltLength:  uint32(len(salt)), // #nosec G115 -- decoded length.
			KeyLength:   uint32(len(key)),  // #nosec G115 -- decoded length.
		},
		salt: salt,
		key:  key,
	}, nil
}
