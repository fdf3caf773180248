package directory

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"dwell/cmd/internal/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Users and Listings on PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "dwell").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("directory: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("directory: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed directory store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "dwell",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("directory: nil pool")
	}
	return st, nil
}

// CreateUser inserts a user row. Email uniqueness maps to ErrConflict.
func (s *PostgresStore) CreateUser(ctx context.Context, u User) (User, error) {
	if u.Email == "" || u.PasswordHash == "" {
		return User{}, errors.New("directory: missing email or password hash")
	}

	now := time.Now().UTC()
	if u.ID == "" {
		id, err := ids.NewULID(now)
		if err != nil {
			return User{}, err
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}

	users := pgIdent(s.schema, "users")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+users+` (id, email, password_hash, first_name, last_name, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.AvatarURL, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrConflict
		}
		return User{}, err
	}
	return u, nil
}

// GetUserByID fetches a user row by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	users := pgIdent(s.schema, "users")
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, avatar_url, created_at
		   FROM `+users+` WHERE id = $1`, id))
}

// GetUserByEmail fetches a user row by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	users := pgIdent(s.schema, "users")
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, avatar_url, created_at
		   FROM `+users+` WHERE email = $1`, email))
}

func (s *PostgresStore) scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.AvatarURL, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// CreateListing inserts a listing row.
func (s *PostgresStore) CreateListing(ctx context.Context, l Listing) (Listing, error) {
	if l.ListerID == "" {
		return Listing{}, errors.New("directory: missing lister id")
	}

	now := time.Now().UTC()
	if l.ID == "" {
		id, err := ids.NewULID(now)
		if err != nil {
			return Listing{}, err
		}
		l.ID = id
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}

	listings := pgIdent(s.schema, "listings")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+listings+` (id, lister_id, title, created_at) VALUES ($1, $2, $3, $4)`,
		l.ID, l.ListerID, l.Title, l.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Listing{}, ErrConflict
		}
		return Listing{}, err
	}
	return l, nil
}

// GetListingByID fetches a listing row by id.
func (s *PostgresStore) GetListingByID(ctx context.Context, id string) (Listing, error) {
	listings := pgIdent(s.schema, "listings")

	var l Listing
	err := s.pool.QueryRow(ctx,
		`SELECT id, lister_id, title, created_at FROM `+listings+` WHERE id = $1`, id,
	).Scan(&l.ID, &l.ListerID, &l.Title, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, ErrNotFound
	}
	if err != nil {
		return Listing{}, err
	}
	return l, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
