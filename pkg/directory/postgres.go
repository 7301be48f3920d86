package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/StricklySoft/stricklysoft-authgate/pkg/auth"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

const (
	sqlCreateUsers = `CREATE TABLE IF NOT EXISTS gateway_users (
	email         TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	sqlLookupUser = `SELECT email, password_hash FROM gateway_users WHERE email = $1`

	sqlUpsertUser = `INSERT INTO gateway_users (email, password_hash) VALUES ($1, $2)
ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = now()`

	sqlDeleteUser = `DELETE FROM gateway_users WHERE email = $1`
)

// SQLQuerier is the part of [postgres.Client] the store needs.
type SQLQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ SQLQuerier = (*postgres.Client)(nil)

// PostgresStore keeps credentials in the gateway_users table.
type PostgresStore struct {
	db SQLQuerier
}

var _ auth.CredentialStore = (*PostgresStore)(nil)

// NewPostgresStore returns a store over db.
func NewPostgresStore(db SQLQuerier) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates gateway_users if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, sqlCreateUsers)
	return err
}

// Lookup implements [auth.CredentialStore].
func (s *PostgresStore) Lookup(ctx context.Context, email string) (auth.CredentialRecord, bool, error) {
	var r auth.CredentialRecord
	err := s.db.QueryRow(ctx, sqlLookupUser, auth.NormalizeEmail(email)).Scan(&r.Email, &r.PasswordHash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return auth.CredentialRecord{}, false, nil
	case err != nil:
		return auth.CredentialRecord{}, false, postgres.WrapError(err, "directory: credential lookup failed")
	}
	return r, true, nil
}

// Put inserts or replaces the record for email. passwordHash must already
// be a bcrypt hash.
func (s *PostgresStore) Put(ctx context.Context, email, passwordHash string) error {
	email = auth.NormalizeEmail(email)
	if email == "" || passwordHash == "" {
		return sserr.New(sserr.CodeValidationRequired, "directory: email and password hash are required")
	}
	_, err := s.db.Exec(ctx, sqlUpsertUser, email, passwordHash)
	return err
}

// Delete removes the record for email and reports whether one existed.
func (s *PostgresStore) Delete(ctx context.Context, email string) (bool, error) {
	tag, err := s.db.Exec(ctx, sqlDeleteUser, auth.NormalizeEmail(email))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
