package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/campushq/handbook/internal/apperror"
	"github.com/campushq/handbook/internal/catalog"
	"github.com/campushq/handbook/internal/model"
)

// newTestCatalog builds a small static catalog shared by the user and
// course service tests.
func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return catalog.New(
		[]catalog.CourseInfo{
			{Code: "COMP1511", Title: "Programming Fundamentals", UOC: 6, Level: 1},
			{Code: "COMP2521", Title: "Data Structures and Algorithms", UOC: 6, Level: 2},
			{Code: "MATH1131", Title: "Mathematics 1A", UOC: 6, Level: 1},
		},
		[]catalog.ProgramInfo{
			{Code: "3778", Title: "Computer Science", UOC: 144, Duration: 3,
				Courses: []string{"COMP1511", "COMP2521"}},
		},
	)
}

func newTestUserService(t *testing.T) (*UserService, *fakeUserRepo) {
	t.Helper()
	users := newFakeUserRepo()
	svc := NewUserService(users, newTestCatalog(t), testLogger())
	return svc, users
}

// seedUser inserts a user directly into the fake store.
func seedUser(t *testing.T, users *fakeUserRepo, username, nickname string) {
	t.Helper()
	err := users.Create(context.Background(), &model.User{
		Username:     username,
		PasswordHash: "irrelevant",
		Nickname:     nickname,
	})
	if err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
}

func TestProfile_UnknownUser(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Profile(context.Background(), "z0000000@ad.unsw.edu.au")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Profile() unknown user error = %v, want ErrNotFound", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, users := newTestUserService(t)
	ctx := context.Background()

	seedUser(t, users, "z1234567@ad.unsw.edu.au", "tester")

	if err := svc.UpdateProfile(ctx, "z1234567@ad.unsw.edu.au", "  3778  ", "COMPA1"); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	user, err := svc.Profile(ctx, "z1234567@ad.unsw.edu.au")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if user.Program != "3778" || user.Major != "COMPA1" {
		t.Errorf("profile = (%q, %q), want (3778, COMPA1)", user.Program, user.Major)
	}
}

func TestAddCourses_UnionSemantics(t *testing.T) {
	svc, users := newTestUserService(t)
	ctx := context.Background()

	seedUser(t, users, "z1234567@ad.unsw.edu.au", "tester")

	got, err := svc.AddCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"COMP1511", "MATH1131"})
	if err != nil {
		t.Fatalf("AddCourses() error = %v", err)
	}
	want := []string{"COMP1511", "MATH1131"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("AddCourses() = %v, want %v", got, want)
	}

	// Re-adding an element plus one new code: a union, never duplicates.
	got, err = svc.AddCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"MATH1131", "COMP2521"})
	if err != nil {
		t.Fatalf("AddCourses() error = %v", err)
	}
	want = []string{"COMP1511", "COMP2521", "MATH1131"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AddCourses() = %v, want %v", got, want)
	}
}

func TestAddCourses_NormalizesCase(t *testing.T) {
	svc, users := newTestUserService(t)

	seedUser(t, users, "z1234567@ad.unsw.edu.au", "tester")

	got, err := svc.AddCourses(context.Background(), "z1234567@ad.unsw.edu.au",
		[]string{" comp1511 ", "COMP1511"})
	if err != nil {
		t.Fatalf("AddCourses() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"COMP1511"}) {
		t.Errorf("AddCourses() = %v, want [COMP1511]", got)
	}
}

func TestAddCourses_RejectsBadCodes(t *testing.T) {
	svc, users := newTestUserService(t)
	ctx := context.Background()

	seedUser(t, users, "z1234567@ad.unsw.edu.au", "tester")

	tests := []struct {
		name  string
		codes []string
	}{
		{"malformed shape", []string{"COMP15"}},
		{"not in catalog", []string{"COMP9999"}},
		{"one bad among good", []string{"COMP1511", "nonsense"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddCourses(ctx, "z1234567@ad.unsw.edu.au", tt.codes)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("AddCourses(%v) error = %v, want ErrValidation", tt.codes, err)
			}
		})
	}

	// A rejected batch must not partially apply.
	got, err := svc.Courses(ctx, "z1234567@ad.unsw.edu.au")
	if err != nil {
		t.Fatalf("Courses() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Courses() after rejected adds = %v, want empty", got)
	}
}

func TestRemoveCourses_FilterSemantics(t *testing.T) {
	svc, users := newTestUserService(t)
	ctx := context.Background()

	seedUser(t, users, "z1234567@ad.unsw.edu.au", "tester")

	if _, err := svc.AddCourses(ctx, "z1234567@ad.unsw.edu.au",
		[]string{"COMP1511", "COMP2521", "MATH1131"}); err != nil {
		t.Fatalf("AddCourses() error = %v", err)
	}

	// Removing an enrolled code plus one never enrolled: plain filter.
	got, err := svc.RemoveCourses(ctx, "z1234567@ad.unsw.edu.au",
		[]string{"COMP2521", "COMP9999"})
	if err != nil {
		t.Fatalf("RemoveCourses() error = %v", err)
	}
	want := []string{"COMP1511", "MATH1131"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RemoveCourses() = %v, want %v", got, want)
	}

	// Removing again is a no-op.
	got, err = svc.RemoveCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"COMP2521"})
	if err != nil {
		t.Fatalf("RemoveCourses() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("repeated RemoveCourses() = %v, want %v", got, want)
	}
}

func TestReplaceCourses(t *testing.T) {
	svc, users := newTestUserService(t)
	ctx := context.Background()

	seedUser(t, users, "z1234567@ad.unsw.edu.au", "tester")

	if _, err := svc.AddCourses(ctx, "z1234567@ad.unsw.edu.au",
		[]string{"COMP1511", "COMP2521"}); err != nil {
		t.Fatalf("AddCourses() error = %v", err)
	}

	got, err := svc.ReplaceCourses(ctx, "z1234567@ad.unsw.edu.au", []string{"MATH1131"})
	if err != nil {
		t.Fatalf("ReplaceCourses() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"MATH1131"}) {
		t.Errorf("ReplaceCourses() = %v, want [MATH1131]", got)
	}
}

func TestCourses_UnknownUser(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Courses(context.Background(), "z0000000@ad.unsw.edu.au")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Courses() unknown user error = %v, want ErrNotFound", err)
	}
}
