package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MinHMACKeyBytes is the smallest accepted digest key.
const MinHMACKeyBytes = 32

// Digester turns plain refresh tokens into stable 64-char hex storage keys.
// The zero value uses plain SHA-256.
type Digester struct {
	key []byte
}

// NewDigester returns a Digester keyed with key (trimmed). An empty key
// selects SHA-256; a non-empty key shorter than MinHMACKeyBytes is rejected.
func NewDigester(key string) (Digester, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return Digester{}, nil
	}
	if len(k) < MinHMACKeyBytes {
		return Digester{}, ErrHMACKeyTooShort
	}
	return Digester{key: []byte(k)}, nil
}

// RequireHMAC is NewDigester that also refuses an empty key.
func RequireHMAC(key string) (Digester, error) {
	if strings.TrimSpace(key) == "" {
		return Digester{}, ErrHMACKeyMissing
	}
	return NewDigester(key)
}

// Keyed reports whether d uses HMAC-SHA256.
func (d Digester) Keyed() bool { return len(d.key) > 0 }

// Digest returns the hex digest of plain.
func (d Digester) Digest(plain string) string {
	if !d.Keyed() {
		return SHA256Hex(plain)
	}
	return HMACSHA256Hex(plain, d.key)
}

// SHA256Hex returns the SHA-256 hex digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HMACSHA256Hex returns the HMAC-SHA256 hex digest of s under key.
func HMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}
