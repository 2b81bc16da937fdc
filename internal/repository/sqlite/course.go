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

// compile-time check that *DB implements repository.CourseRepository
var _ repository.CourseRepository = (*DB)(nil)

// EnsureCourse lazily creates the aggregate row for code. INSERT OR IGNORE
// makes this idempotent and race-safe: two concurrent ensures both succeed.
func (db *DB) EnsureCourse(ctx context.Context, code string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO courses (code) VALUES (?)`, code,
	)
	if err != nil {
		return fmt.Errorf("sqlite: ensuring course %s: %w", code, err)
	}
	return nil
}

// AddComment appends a comment to its course's aggregate, creating the
// aggregate if absent. The append is a single INSERT, so concurrent
// comments on the same course never conflict.
func (db *DB) AddComment(ctx context.Context, comment *model.Comment) error {
	comment.ID = xid.New().String()
	comment.CreatedAt = time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO courses (code) VALUES (?)`, comment.CourseCode,
	); err != nil {
		return fmt.Errorf("sqlite: ensuring course %s: %w", comment.CourseCode, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO comments (id, course_code, username, text, difficulty, usefulness, workload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		comment.ID,
		comment.CourseCode,
		comment.Username,
		comment.Text,
		comment.Difficulty,
		comment.Usefulness,
		comment.Workload,
		comment.CreatedAt,
	); err != nil {
		return fmt.Errorf("sqlite: creating comment on %s: %w", comment.CourseCode, err)
	}

	return tx.Commit()
}

// GetComment retrieves a single comment by id (nickname not resolved —
// this path exists for ownership checks, not display).
func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, course_code, username, text, difficulty, usefulness, workload, created_at
		 FROM comments WHERE id = ?`,
		id,
	).Scan(
		&c.ID, &c.CourseCode, &c.Username, &c.Text,
		&c.Difficulty, &c.Usefulness, &c.Workload, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return &c, nil
}

// ListComments returns a course's comments in insertion order with the
// authors' current nicknames. The LEFT JOIN resolves the nickname at read
// time — renaming yourself relabels all your past comments on the next
// read, nothing is denormalized onto the comment row.
//
// xid values sort by creation time, so (created_at, id) is a stable
// insertion order even for comments created within the same tick.
func (db *DB) ListComments(ctx context.Context, code string) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.course_code, c.username, COALESCE(u.nickname, ''), c.text,
		        c.difficulty, c.usefulness, c.workload, c.created_at
		 FROM comments c
		 LEFT JOIN users u ON u.username = c.username
		 WHERE c.course_code = ?
		 ORDER BY c.created_at, c.id`,
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments for %s: %w", code, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(
			&c.ID, &c.CourseCode, &c.Username, &c.Nickname, &c.Text,
			&c.Difficulty, &c.Usefulness, &c.Workload, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}

	return comments, nil
}

// DeleteComment removes the comment with this id from whichever course
// holds it. RowsAffected distinguishes "deleted" from "never existed".
func (db *DB) DeleteComment(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM comments WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("comment", id)
	}

	return nil
}

// RatingSummaries computes per-course means for the three rating
// dimensions. Aggregating over the comments table means courses with zero
// comments simply never appear — no division by zero, no NaN.
func (db *DB) RatingSummaries(ctx context.Context) ([]model.RatingSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT course_code,
		        AVG(difficulty), AVG(usefulness), AVG(workload), COUNT(*)
		 FROM comments
		 GROUP BY course_code`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: computing rating summaries: %w", err)
	}
	defer rows.Close()

	summaries := []model.RatingSummary{}
	for rows.Next() {
		var s model.RatingSummary
		if err := rows.Scan(
			&s.CourseCode, &s.Difficulty, &s.Usefulness, &s.Workload, &s.Count,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning rating summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating rating summaries: %w", err)
	}

	return summaries, nil
}
