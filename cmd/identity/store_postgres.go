package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the Postgres schema holding worksite tables.
const DefaultSchema = "worksite"

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidSchema reports whether s is a plain Postgres identifier.
func ValidSchema(s string) bool { return pgIdentRe.MatchString(s) }

// PostgresOption configures the Postgres lookups.
type PostgresOption func(*pgTables) error

// WithSchema overrides DefaultSchema.
func WithSchema(schema string) PostgresOption {
	return func(t *pgTables) error {
		schema = strings.TrimSpace(schema)
		if !ValidSchema(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		t.schema = schema
		return nil
	}
}

type pgTables struct {
	pool   *pgxpool.Pool
	schema string
}

func newPGTables(pool *pgxpool.Pool, opts []PostgresOption) (pgTables, error) {
	t := pgTables{pool: pool, schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&t); err != nil {
			return pgTables{}, err
		}
	}
	if t.pool == nil {
		return pgTables{}, errors.New("identity: nil pool")
	}
	return t, nil
}

func (t pgTables) table(name string) string {
	return pgx.Identifier{t.schema, name}.Sanitize()
}

// PostgresUsers implements UserLookup over <schema>.users.
// The pool is owned by the caller.
type PostgresUsers struct {
	pgTables
}

// NewPostgresUsers builds a UserLookup backed by pool.
func NewPostgresUsers(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresUsers, error) {
	t, err := newPGTables(pool, opts)
	if err != nil {
		return nil, err
	}
	return &PostgresUsers{pgTables: t}, nil
}

const userColumns = `id, first_name, last_name, email, password_hash, user_type_id, created_at`

// FindByEmail looks a user up by normalized email.
func (s *PostgresUsers) FindByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.FindByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email is required"}
	}

	q := `SELECT ` + userColumns + ` FROM ` + s.table("users") + ` WHERE email_norm = $1`
	return s.scanUser(op, s.pool.QueryRow(ctx, q, norm))
}

// FindByID looks a user up by id.
func (s *PostgresUsers) FindByID(ctx context.Context, id string) (User, error) {
	const op = "identity.FindByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "id is required"}
	}

	q := `SELECT ` + userColumns + ` FROM ` + s.table("users") + ` WHERE id = $1`
	return s.scanUser(op, s.pool.QueryRow(ctx, q, id))
}

func (s *PostgresUsers) scanUser(op string, row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.UserTypeID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	if err != nil {
		return User{}, OpError{Op: op, Kind: err}
	}
	return u, nil
}

// PostgresUserTypes implements UserTypeLookup over <schema>.user_types.
type PostgresUserTypes struct {
	pgTables
}

// NewPostgresUserTypes builds a UserTypeLookup backed by pool.
func NewPostgresUserTypes(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresUserTypes, error) {
	t, err := newPGTables(pool, opts)
	if err != nil {
		return nil, err
	}
	return &PostgresUserTypes{pgTables: t}, nil
}

// FindByID loads a user type with its permission flags.
func (s *PostgresUserTypes) FindByID(ctx context.Context, id int64) (UserType, error) {
	const op = "identity.FindUserTypeByID"

	var ut UserType
	q := `SELECT id, name, approve_measurement FROM ` + s.table("user_types") + ` WHERE id = $1`
	err := s.pool.QueryRow(ctx, q, id).Scan(&ut.ID, &ut.Name, &ut.ApproveMeasurement)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserType{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user type"}
	}
	if err != nil {
		return UserType{}, OpError{Op: op, Kind: err}
	}
	return ut, nil
}
