package sqlite

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/campushq/handbook/internal/apperror"
	"github.com/campushq/handbook/internal/model"
)

// newTestDB creates a fresh in-memory database for a single test. Fast,
// isolated, destroyed on close.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts a user and fails the test on error.
func createTestUser(t *testing.T, db *DB, username, nickname string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		PasswordHash: "$2a$04$notarealhashbutgoodenough",
		Nickname:     nickname,
	}
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := createTestUser(t, db, "z1234567@ad.unsw.edu.au", "user123456")

	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}

	found, err := db.GetByUsername(context.Background(), "z1234567@ad.unsw.edu.au")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if found.Nickname != "user123456" {
		t.Errorf("Nickname = %q, want %q", found.Nickname, "user123456")
	}
	if len(found.Courses) != 0 {
		t.Errorf("new user Courses = %v, want empty", found.Courses)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)

	createTestUser(t, db, "z1234567@ad.unsw.edu.au", "user111111")

	dup := &model.User{
		Username:     "z1234567@ad.unsw.edu.au",
		PasswordHash: "hash",
		Nickname:     "user222222",
	}
	err := db.Create(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() duplicate username error = %v, want ErrConflict", err)
	}
}

func TestCreateUser_DuplicateNickname(t *testing.T) {
	db := newTestDB(t)

	createTestUser(t, db, "z1234567@ad.unsw.edu.au", "user111111")

	dup := &model.User{
		Username:     "z7654321@ad.unsw.edu.au",
		PasswordHash: "hash",
		Nickname:     "user111111",
	}
	err := db.Create(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() duplicate nickname error = %v, want ErrConflict", err)
	}
}

func TestGetByUsername_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByUsername(context.Background(), "z0000000@ad.unsw.edu.au")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByUsername() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateNickname_ConflictWithOtherUser(t *testing.T) {
	db := newTestDB(t)

	createTestUser(t, db, "z1111111@ad.unsw.edu.au", "alpha")
	createTestUser(t, db, "z2222222@ad.unsw.edu.au", "beta")

	err := db.UpdateNickname(context.Background(), "z2222222@ad.unsw.edu.au", "alpha")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateNickname() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// REFRESH TOKEN ROTATION
// =========================================================================

func TestRotateRefreshToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "z1234567@ad.unsw.edu.au", "user123456")

	if err := db.SetRefreshToken(ctx, "z1234567@ad.unsw.edu.au", "token-1"); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}

	// First rotation succeeds.
	if err := db.RotateRefreshToken(ctx, "z1234567@ad.unsw.edu.au", "token-1", "token-2"); err != nil {
		t.Fatalf("RotateRefreshToken() error = %v", err)
	}

	// Replaying the stale token must fail — only the latest token rotates.
	err := db.RotateRefreshToken(ctx, "z1234567@ad.unsw.edu.au", "token-1", "token-3")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("RotateRefreshToken() with stale token error = %v, want ErrUnauthorized", err)
	}

	// The current token is still token-2.
	user, err := db.GetByRefreshToken(ctx, "token-2")
	if err != nil {
		t.Fatalf("GetByRefreshToken() error = %v", err)
	}
	if user.Username != "z1234567@ad.unsw.edu.au" {
		t.Errorf("Username = %q, want %q", user.Username, "z1234567@ad.unsw.edu.au")
	}
}

func TestGetByRefreshToken_RotatedOut(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "z1234567@ad.unsw.edu.au", "user123456")

	if err := db.SetRefreshToken(ctx, "z1234567@ad.unsw.edu.au", "token-1"); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}
	if err := db.SetRefreshToken(ctx, "z1234567@ad.unsw.edu.au", "token-2"); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}

	_, err := db.GetByRefreshToken(ctx, "token-1")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByRefreshToken() with rotated-out token error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// COURSE SET OPERATIONS
// =========================================================================

func TestAddCourses_IdempotentUnion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "z1234567@ad.unsw.edu.au", "user123456")

	if err := db.AddCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"COMP1511", "MATH1131"}); err != nil {
		t.Fatalf("AddCourses() error = %v", err)
	}
	// Re-adding COMP1511 must not duplicate it.
	if err := db.AddCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"COMP1511"}); err != nil {
		t.Fatalf("AddCourses() error = %v", err)
	}

	courses, err := db.ListCourses(ctx, "z1234567@ad.unsw.edu.au")
	if err != nil {
		t.Fatalf("ListCourses() error = %v", err)
	}
	want := []string{"COMP1511", "MATH1131"}
	if !reflect.DeepEqual(courses, want) {
		t.Errorf("ListCourses() = %v, want %v", courses, want)
	}
}

func TestRemoveCourses_IdempotentFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "z1234567@ad.unsw.edu.au", "user123456")

	if err := db.AddCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"COMP1511", "MATH1131"}); err != nil {
		t.Fatalf("AddCourses() error = %v", err)
	}

	if err := db.RemoveCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"COMP1511"}); err != nil {
		t.Fatalf("RemoveCourses() error = %v", err)
	}
	// Removing it again is a no-op, not an error.
	if err := db.RemoveCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"COMP1511"}); err != nil {
		t.Fatalf("RemoveCourses() repeated error = %v", err)
	}

	courses, err := db.ListCourses(ctx, "z1234567@ad.unsw.edu.au")
	if err != nil {
		t.Fatalf("ListCourses() error = %v", err)
	}
	want := []string{"MATH1131"}
	if !reflect.DeepEqual(courses, want) {
		t.Errorf("ListCourses() = %v, want %v", courses, want)
	}
}

func TestReplaceCourses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "z1234567@ad.unsw.edu.au", "user123456")

	if err := db.AddCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"COMP1511"}); err != nil {
		t.Fatalf("AddCourses() error = %v", err)
	}
	if err := db.ReplaceCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"COMP2521", "COMP2041"}); err != nil {
		t.Fatalf("ReplaceCourses() error = %v", err)
	}

	courses, err := db.ListCourses(ctx, "z1234567@ad.unsw.edu.au")
	if err != nil {
		t.Fatalf("ListCourses() error = %v", err)
	}
	want := []string{"COMP2041", "COMP2521"}
	if !reflect.DeepEqual(courses, want) {
		t.Errorf("ListCourses() = %v, want %v", courses, want)
	}
}

func TestAddCourses_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	err := db.AddCourses(context.Background(), "z0000000@ad.unsw.edu.au", []string{"COMP1511"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddCourses() for unknown user error = %v, want ErrNotFound", err)
	}
}
