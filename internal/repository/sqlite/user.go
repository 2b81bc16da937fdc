package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/campushq/handbook/internal/apperror"
	"github.com/campushq/handbook/internal/model"
	"github.com/campushq/handbook/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Create inserts a new user. The caller supplies username, password hash
// and nickname; ID and timestamps are assigned here.
//
// Uniqueness of both username and nickname is enforced by the schema, so a
// duplicate surfaces as a driver error which we translate to a typed
// Conflict — no pre-check SELECT, no race window.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, nickname, program, major, refresh_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Nickname,
		user.Program,
		user.Major,
		user.RefreshToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "users.username") {
			return apperror.Conflict("user", user.Username)
		}
		if isUniqueViolation(err, "users.nickname") {
			return apperror.Conflict("nickname", user.Nickname)
		}
		return fmt.Errorf("sqlite: creating user %s: %w", user.Username, err)
	}

	return nil
}

// GetByUsername retrieves a user with their enrolled-course set.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := db.scanUser(ctx, `WHERE username = ?`, username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", username, err)
	}

	user.Courses, err = db.ListCourses(ctx, username)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetByRefreshToken finds the user whose CURRENT refresh token is exactly
// this value. A rotated-out token matches nobody.
func (db *DB) GetByRefreshToken(ctx context.Context, token string) (*model.User, error) {
	user, err := db.scanUser(ctx, `WHERE refresh_token = ? AND refresh_token != ''`, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("refresh token", "presented value")
		}
		return nil, fmt.Errorf("sqlite: getting user by refresh token: %w", err)
	}
	return user, nil
}

func (db *DB) scanUser(ctx context.Context, where string, args ...any) (*model.User, error) {
	var user model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, nickname, program, major, refresh_token, created_at, updated_at
		 FROM users `+where,
		args...,
	).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Nickname,
		&user.Program,
		&user.Major,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// NicknameTaken reports whether any user holds the nickname.
func (db *DB) NicknameTaken(ctx context.Context, nickname string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE nickname = ?`, nickname,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking nickname %s: %w", nickname, err)
	}
	return count > 0, nil
}

// UpdateNickname sets a user's display name. Conflicts (nickname taken by a
// different user) surface as typed errors via the UNIQUE constraint.
func (db *DB) UpdateNickname(ctx context.Context, username, nickname string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET nickname = ?, updated_at = ? WHERE username = ?`,
		nickname, time.Now(), username,
	)
	if err != nil {
		if isUniqueViolation(err, "users.nickname") {
			return apperror.Conflict("nickname", nickname)
		}
		return fmt.Errorf("sqlite: updating nickname for %s: %w", username, err)
	}

	return requireRowsAffected(result, "user", username)
}

// UpdateProfile sets the free-text program/major fields.
func (db *DB) UpdateProfile(ctx context.Context, username, program, major string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET program = ?, major = ?, updated_at = ? WHERE username = ?`,
		program, major, time.Now(), username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile for %s: %w", username, err)
	}

	return requireRowsAffected(result, "user", username)
}

// SetRefreshToken unconditionally records the user's only valid refresh
// token. Used on login and registration, where holding the password is the
// proof of identity and any previous session is deliberately displaced.
func (db *DB) SetRefreshToken(ctx context.Context, username, token string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ? WHERE username = ?`,
		token, time.Now(), username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting refresh token for %s: %w", username, err)
	}

	return requireRowsAffected(result, "user", username)
}

// RotateRefreshToken atomically swaps old for new.
//
// The WHERE clause is the whole point: the UPDATE only matches while old is
// still the current token, and SQLite executes the statement atomically. If
// two refreshes race, exactly one matches and the other gets zero rows
// affected — reported as Unauthorized so the losing client falls back to
// login.
func (db *DB) RotateRefreshToken(ctx context.Context, username, old, new string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ?
		 WHERE username = ? AND refresh_token = ?`,
		new, time.Now(), username, old,
	)
	if err != nil {
		return fmt.Errorf("sqlite: rotating refresh token for %s: %w", username, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.Unauthorized("refresh token is no longer valid")
	}

	return nil
}

// ListCourses returns the user's enrolled course codes, sorted.
func (db *DB) ListCourses(ctx context.Context, username string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT course_code FROM user_courses WHERE username = ? ORDER BY course_code`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing courses for %s: %w", username, err)
	}
	defer rows.Close()

	courses := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("sqlite: scanning course code: %w", err)
		}
		courses = append(courses, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating courses: %w", err)
	}

	return courses, nil
}

// AddCourses unions codes into the user's set. INSERT OR IGNORE makes
// re-adding an existing code a no-op, so the whole operation is idempotent.
func (db *DB) AddCourses(ctx context.Context, username string, codes []string) error {
	if err := db.requireUser(ctx, username); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, code := range codes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_courses (username, course_code) VALUES (?, ?)`,
			username, code,
		); err != nil {
			return fmt.Errorf("sqlite: adding course %s for %s: %w", code, username, err)
		}
	}

	return tx.Commit()
}

// ReplaceCourses swaps the user's whole set for codes.
func (db *DB) ReplaceCourses(ctx context.Context, username string, codes []string) error {
	if err := db.requireUser(ctx, username); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_courses WHERE username = ?`, username,
	); err != nil {
		return fmt.Errorf("sqlite: clearing courses for %s: %w", username, err)
	}

	for _, code := range codes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_courses (username, course_code) VALUES (?, ?)`,
			username, code,
		); err != nil {
			return fmt.Errorf("sqlite: adding course %s for %s: %w", code, username, err)
		}
	}

	return tx.Commit()
}

// RemoveCourses filters codes out of the user's set. Removing an absent
// code is a no-op, so this too is idempotent.
func (db *DB) RemoveCourses(ctx context.Context, username string, codes []string) error {
	if err := db.requireUser(ctx, username); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, code := range codes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_courses WHERE username = ? AND course_code = ?`,
			username, code,
		); err != nil {
			return fmt.Errorf("sqlite: removing course %s for %s: %w", code, username, err)
		}
	}

	return tx.Commit()
}

// requireUser returns NotFound unless the username exists. Course-set
// writes would otherwise silently target nobody (FK violations only fire
// on insert, not on an empty DELETE).
func (db *DB) requireUser(ctx context.Context, username string) error {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, username,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("sqlite: checking user %s: %w", username, err)
	}
	if count == 0 {
		return apperror.NotFound("user", username)
	}
	return nil
}

// requireRowsAffected translates "UPDATE matched nothing" into NotFound.
func requireRowsAffected(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
