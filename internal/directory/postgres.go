package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory resolves display identities from the users table.
// It does not own the pool.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresDirectory behavior.
type PostgresOption func(*PostgresDirectory) error

// WithSchema sets the DB schema used by the directory (default: "ripple").
func WithSchema(schema string) PostgresOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("directory: empty schema")
		}
		d.schema = schema
		return nil
	}
}

// NewPostgresDirectory constructs a Postgres-backed Directory.
func NewPostgresDirectory(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{pool: pool, schema: "ripple"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, errors.New("directory: nil pool")
	}
	return d, nil
}

// Lookup resolves the given ids; unknown ids are absent from the result.
func (d *PostgresDirectory) Lookup(ctx context.Context, ids []string) (map[string]User, error) {
	if d == nil || d.pool == nil {
		return nil, errors.New("directory: nil directory")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[string]User{}, nil
	}

	users := pgx.Identifier{d.schema, "users"}.Sanitize()

	rows, err := d.pool.Query(ctx,
		`SELECT id, username, COALESCE(avatar_url, ''), is_online
		   FROM `+users+`
		  WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]User, len(ids))
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL, &u.Online); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}
