package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrTokenExpired and ErrTokenInvalid are the two Codec verification failures.
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")

	// ErrSessionNotFound means no active refresh record matches the token.
	// Missing, revoked and expired records all report it.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenConflict reports a duplicate token digest on insert. It signals a
	// broken randomness source and is never retried.
	ErrTokenConflict = errors.New("refresh token conflict")

	// ErrAuthentication is the client-facing failure for bad credentials and
	// any refresh rejection.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvariantViolation marks stored data that contradicts itself, such as
	// a user whose user type no longer exists.
	ErrInvariantViolation = errors.New("invariant violation")
)

// AuthenticationError carries the internal reason behind ErrAuthentication.
// Reason is for logs only; responses must not expose it.
type AuthenticationError struct {
	Op     string
	Reason string
	Err    error
}

func (e AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v: %s", e.Op, ErrAuthentication, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s: %v", e.Op, ErrAuthentication, e.Reason, e.Err)
}

func (e AuthenticationError) Unwrap() error { return ErrAuthentication }

// Reasons recorded on AuthenticationError.
const (
	ReasonBadCredentials   = "bad_credentials"
	ReasonTokenExpired     = "token_expired"
	ReasonTokenInvalid     = "token_invalid"
	ReasonSessionNotActive = "session_not_active"
	ReasonSubjectMismatch  = "subject_mismatch"
	ReasonUserMissing      = "user_missing"
)

// FailureReason returns the internal reason of an authentication failure, or "".
func FailureReason(err error) string {
	var ae AuthenticationError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
