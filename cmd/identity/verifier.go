package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"

	"worksite/cmd/security/password"
)

// CredentialVerifier checks an email/password pair against stored Argon2id hashes.
//
// Unknown emails and wrong passwords both yield ErrInvalidCredentials, and an
// unknown email still pays for one Argon2id derivation against a dummy hash so
// response timing does not reveal which accounts exist.
type CredentialVerifier struct {
	users     UserLookup
	hasher    password.Config
	dummyHash string
	log       *slog.Logger
}

// NewCredentialVerifier builds a verifier. The dummy hash is derived once here.
func NewCredentialVerifier(users UserLookup, hasher password.Config, log *slog.Logger) (*CredentialVerifier, error) {
	if users == nil {
		return nil, errors.New("identity: nil user lookup")
	}
	if log == nil {
		log = slog.Default()
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	dummy, err := hasher.HashRaw(base64.RawURLEncoding.EncodeToString(raw))
	if err != nil {
		return nil, err
	}

	return &CredentialVerifier{users: users, hasher: hasher, dummyHash: dummy, log: log}, nil
}

// Verify returns the user owning email when plain matches the stored hash.
// Storage failures are returned as-is and are not credential failures.
func (v *CredentialVerifier) Verify(ctx context.Context, email, plain string) (User, error) {
	norm := NormalizeEmail(email)
	if norm == "" || plain == "" {
		_, _ = v.hasher.Verify(v.dummyHash, plain)
		return User{}, ErrInvalidCredentials
	}

	u, err := v.users.FindByEmail(ctx, norm)
	if err != nil {
		if IsNotFound(err) {
			_, _ = v.hasher.Verify(v.dummyHash, plain)
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	ok, err := v.hasher.Verify(u.PasswordHash, plain)
	if err != nil {
		v.log.Warn("identity.verify.bad_stored_hash", "user_id", u.ID, "err", err)
		return User{}, ErrInvalidCredentials
	}
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}
