// Package repository defines the storage interfaces the service layer
// depends on. The sqlite subpackage provides the real implementation;
// tests use in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/campushq/handbook/internal/model"
)

// UserRepository stores user accounts, their enrolled-course sets, and the
// current refresh token per user.
type UserRepository interface {
	// Create inserts a new user. Returns apperror.ErrConflict if the
	// username or nickname is already taken.
	Create(ctx context.Context, user *model.User) error
	// GetByUsername returns the user, courses included, or apperror.ErrNotFound.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// NicknameTaken reports whether any user currently holds the nickname.
	NicknameTaken(ctx context.Context, nickname string) (bool, error)
	UpdateNickname(ctx context.Context, username, nickname string) error
	UpdateProfile(ctx context.Context, username, program, major string) error

	// SetRefreshToken unconditionally records token as the user's only
	// valid refresh token (login and register paths).
	SetRefreshToken(ctx context.Context, username, token string) error
	// RotateRefreshToken atomically replaces old with new. If old is no
	// longer the user's current token the swap fails with
	// apperror.ErrUnauthorized — this is what stops two concurrent
	// refreshes from both succeeding.
	RotateRefreshToken(ctx context.Context, username, old, new string) error
	// GetByRefreshToken finds the user currently holding this exact
	// refresh token, or apperror.ErrNotFound.
	GetByRefreshToken(ctx context.Context, token string) (*model.User, error)

	// Course-set operations. Codes are stored uppercase; Add is an
	// idempotent union, Remove an idempotent filter.
	ListCourses(ctx context.Context, username string) ([]string, error)
	AddCourses(ctx context.Context, username string, codes []string) error
	ReplaceCourses(ctx context.Context, username string, codes []string) error
	RemoveCourses(ctx context.Context, username string, codes []string) error
}

// CourseRepository stores the mutable per-course aggregate: the course row
// itself (created lazily) and its embedded comments.
type CourseRepository interface {
	// EnsureCourse lazily creates the aggregate row for code. Idempotent.
	EnsureCourse(ctx context.Context, code string) error
	// AddComment appends a comment, creating the aggregate if absent.
	// Fills in the comment's ID and CreatedAt.
	AddComment(ctx context.Context, comment *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	// ListComments returns a course's comments in insertion order with the
	// authors' CURRENT nicknames resolved.
	ListComments(ctx context.Context, code string) ([]model.Comment, error)
	// DeleteComment removes the comment by id, apperror.ErrNotFound if absent.
	DeleteComment(ctx context.Context, id string) error
	// RatingSummaries returns per-course rating means over all courses that
	// have at least one comment.
	RatingSummaries(ctx context.Context) ([]model.RatingSummary, error)
}

// CodeRepository stores pending registration verification codes, at most
// one active code per username.
type CodeRepository interface {
	PutCode(ctx context.Context, username, code string, expiresAt time.Time) error
	// GetCode returns the pending code and its expiry, or apperror.ErrNotFound.
	GetCode(ctx context.Context, username string) (string, time.Time, error)
	DeleteCode(ctx context.Context, username string) error
}
