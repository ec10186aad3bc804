package session

import (
	"context"
	"time"
)

// Record is a persisted refresh token.
type Record struct {
	ID     string
	UserID string

	// Token is the plain refresh token. It is set only when handing a record
	// to Create or Rotate; stores persist TokenHash instead and never return it.
	Token     string
	TokenHash string

	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Active reports whether r can still be used for refresh or logout.
func (r Record) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}

// Store persists refresh-token records.
//
// Revocation is monotonic: once RevokedAt is set it never changes. A Revoke
// that has returned must be observed by every later FindActiveByToken for the
// same token.
type Store interface {
	// Create inserts rec. A duplicate token digest yields ErrTokenConflict.
	Create(ctx context.Context, rec Record) error

	// FindActiveByToken returns the active record for token, or ErrSessionNotFound.
	FindActiveByToken(ctx context.Context, token string, now time.Time) (Record, error)

	// Revoke marks token revoked. Unknown and already revoked tokens are not errors.
	Revoke(ctx context.Context, token string, now time.Time) error

	// RevokeAllForUser revokes every active record of userID and returns how many changed.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// PurgeExpired deletes records with ExpiresAt <= now and returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// Rotate atomically revokes the active record for oldToken and creates next.
	// If oldToken is not active it returns ErrSessionNotFound and creates nothing.
	Rotate(ctx context.Context, oldToken string, next Record, now time.Time) error
}
