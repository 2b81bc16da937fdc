package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campushq/handbook/internal/apperror"
	"github.com/campushq/handbook/internal/repository"
)

// compile-time check that *DB implements repository.CodeRepository
var _ repository.CodeRepository = (*DB)(nil)

// PutCode records the pending verification code for a username. The
// primary key on username plus INSERT OR REPLACE keeps at most one active
// code per address — requesting a new code invalidates the previous one.
func (db *DB) PutCode(ctx context.Context, username, code string, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO verification_codes (username, code, expires_at)
		 VALUES (?, ?, ?)`,
		username, code, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: storing verification code for %s: %w", username, err)
	}
	return nil
}

// GetCode returns the pending code and expiry for a username.
func (db *DB) GetCode(ctx context.Context, username string) (string, time.Time, error) {
	var (
		code      string
		expiresAt time.Time
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT code, expires_at FROM verification_codes WHERE username = ?`,
		username,
	).Scan(&code, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", time.Time{}, apperror.NotFound("verification code", username)
		}
		return "", time.Time{}, fmt.Errorf("sqlite: getting verification code for %s: %w", username, err)
	}
	return code, expiresAt, nil
}

// DeleteCode removes a username's pending code (codes are single-use).
// Deleting an absent code is a no-op.
func (db *DB) DeleteCode(ctx context.Context, username string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE username = ?`, username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting verification code for %s: %w", username, err)
	}
	return nil
}
