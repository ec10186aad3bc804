package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"worksite/cmd/identity"
	"worksite/cmd/security/token"
)

// PostgresStore implements Store over <schema>.refresh_tokens.
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	digest token.Digester
	table  string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a Postgres-backed Store in schema (identity.DefaultSchema when empty).
func NewPostgresStore(pool *pgxpool.Pool, digest token.Digester, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.ValidSchema(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier %q", schema)
	}
	return &PostgresStore{
		pool:   pool,
		digest: digest,
		table:  pgx.Identifier{schema, "refresh_tokens"}.Sanitize(),
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	return s.insert(ctx, s.pool, rec)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) insert(ctx context.Context, db execer, rec Record) error {
	_, err := db.Exec(ctx, `
		INSERT INTO `+s.table+` (id, user_id, token_hash, expires_at, created_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
	`, rec.ID, rec.UserID, s.digest.Digest(rec.Token), rec.ExpiresAt, rec.CreatedAt)
	if isUniqueViolation(err) {
		return ErrTokenConflict
	}
	return err
}

func (s *PostgresStore) FindActiveByToken(ctx context.Context, tok string, now time.Time) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at, revoked_at
		FROM `+s.table+`
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
	`, s.digest.Digest(tok), now).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TokenHash,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, tok string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token_hash = $1
	`, s.digest.Digest(tok), now)
	return err
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Rotate locks the old row so concurrent rotations of one token serialize;
// the loser sees it revoked and gets ErrSessionNotFound.
func (s *PostgresStore) Rotate(ctx context.Context, oldToken string, next Record, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var oldID string
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM `+s.table+`
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
		FOR UPDATE
	`, s.digest.Digest(oldToken), now).Scan(&oldID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE `+s.table+` SET revoked_at = $2 WHERE id = $1`, oldID, now); err != nil {
		return err
	}
	if err := s.insert(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
