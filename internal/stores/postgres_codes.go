package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema creates the table used by [PostgresCodeStore].
const Schema = `
CREATE TABLE IF NOT EXISTS verification_codes (
	id         BIGSERIAL PRIMARY KEY,
	code       TEXT NOT NULL,
	email      TEXT NOT NULL,
	selector   TEXT NOT NULL,
	token      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS verification_codes_code_idx ON verification_codes (code);
CREATE INDEX IF NOT EXISTS verification_codes_email_idx ON verification_codes (email);
CREATE INDEX IF NOT EXISTS verification_codes_expires_at_idx ON verification_codes (expires_at);
`

// PostgresCodeStore keeps verification codes in a SQL table. Consumption is
// a single DELETE whose affected-row count decides the winner of a race.
type PostgresCodeStore struct {
	db   *sqlx.DB
	opts Options
}

func NewPostgresCodeStore(db *sqlx.DB, opts Options) *PostgresCodeStore {
	return &PostgresCodeStore{
		db:   db,
		opts: opts.normalize(),
	}
}

// EnsureSchema applies [Schema]. Safe to call on every start.
func (s *PostgresCodeStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresCodeStore) Put(ctx context.Context, email, code, selector, token string) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	q := s.db.Rebind(`INSERT INTO verification_codes (code, email, selector, token, expires_at) VALUES (?, ?, ?, ?, ?)`)
	expiresAt := s.opts.Now().Add(s.opts.TTL).UTC()
	if _, err := s.db.ExecContext(ctx, q, code, email, selector, token, expiresAt); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresCodeStore) SweepExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreUnavailable
	}
	q := s.db.Rebind(`DELETE FROM verification_codes WHERE expires_at < ?`)
	return s.execCount(ctx, q, s.opts.Now().UTC())
}

func (s *PostgresCodeStore) FindByCode(ctx context.Context, code string) (VerificationCode, error) {
	if s == nil || s.db == nil {
		return VerificationCode{}, ErrStoreUnavailable
	}
	q := s.db.Rebind(`SELECT code, email, selector, token, expires_at FROM verification_codes
		WHERE code = ? AND expires_at >= ? ORDER BY expires_at DESC, id DESC LIMIT 1`)

	var row VerificationCode
	if err := s.db.GetContext(ctx, &row, q, code, s.opts.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VerificationCode{}, ErrCodeNotFound
		}
		return VerificationCode{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return row, nil
}

func (s *PostgresCodeStore) FindByCodeAndEmail(ctx context.Context, code, email string) (VerificationCode, error) {
	if s == nil || s.db == nil {
		return VerificationCode{}, ErrStoreUnavailable
	}
	q := s.db.Rebind(`SELECT code, email, selector, token, expires_at FROM verification_codes
		WHERE code = ? AND email = ? AND expires_at >= ? ORDER BY expires_at DESC, id DESC LIMIT 1`)

	var row VerificationCode
	if err := s.db.GetContext(ctx, &row, q, code, email, s.opts.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VerificationCode{}, ErrCodeNotFound
		}
		return VerificationCode{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return row, nil
}

func (s *PostgresCodeStore) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreUnavailable
	}
	q := s.db.Rebind(`DELETE FROM verification_codes WHERE email = ?`)
	return s.execCount(ctx, q, email)
}

func (s *PostgresCodeStore) DeleteByCodeAndEmail(ctx context.Context, code, email string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreUnavailable
	}
	q := s.db.Rebind(`DELETE FROM verification_codes WHERE code = ? AND email = ? AND expires_at >= ?`)
	return s.execCount(ctx, q, code, email, s.opts.Now().UTC())
}

func (s *PostgresCodeStore) execCount(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}
