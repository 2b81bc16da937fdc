package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/campushq/handbook/internal/apperror"
	"github.com/campushq/handbook/internal/catalog"
	"github.com/campushq/handbook/internal/model"
	"github.com/campushq/handbook/internal/repository"
)

// UserService handles profile reads/updates and the enrolled-course set.
type UserService struct {
	users   repository.UserRepository
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(users repository.UserRepository, cat *catalog.Catalog, logger *slog.Logger) *UserService {
	return &UserService{
		users:   users,
		catalog: cat,
		logger:  logger,
	}
}

// Profile returns the user's record. PasswordHash and RefreshToken are
// excluded from JSON at the model level, so this is safe to serve directly.
func (s *UserService) Profile(ctx context.Context, username string) (*model.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("service/user: fetching user %s: %w", username, err)
	}
	return user, nil
}

// UpdateProfile sets the free-text program/major fields.
func (s *UserService) UpdateProfile(ctx context.Context, username, program, major string) error {
	if err := s.users.UpdateProfile(ctx, username, strings.TrimSpace(program), strings.TrimSpace(major)); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("user", username)
		}
		return fmt.Errorf("service/user: updating profile for %s: %w", username, err)
	}
	return nil
}

// Courses returns the user's enrolled course codes.
func (s *UserService) Courses(ctx context.Context, username string) ([]string, error) {
	if _, err := s.users.GetByUsername(ctx, username); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("service/user: fetching user %s: %w", username, err)
	}

	courses, err := s.users.ListCourses(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing courses for %s: %w", username, err)
	}
	return courses, nil
}

// AddCourses unions codes into the user's set. Codes are uppercased and
// deduplicated; adding an already-present code is a no-op. Every code must
// exist in the course catalog.
func (s *UserService) AddCourses(ctx context.Context, username string, codes []string) ([]string, error) {
	normalized, err := s.normalizeCourseCodes(codes, true)
	if err != nil {
		return nil, err
	}

	if err := s.users.AddCourses(ctx, username, normalized); err != nil {
		return nil, fmt.Errorf("service/user: adding courses for %s: %w", username, err)
	}

	return s.users.ListCourses(ctx, username)
}

// ReplaceCourses swaps the user's whole set for codes.
func (s *UserService) ReplaceCourses(ctx context.Context, username string, codes []string) ([]string, error) {
	normalized, err := s.normalizeCourseCodes(codes, true)
	if err != nil {
		return nil, err
	}

	if err := s.users.ReplaceCourses(ctx, username, normalized); err != nil {
		return nil, fmt.Errorf("service/user: replacing courses for %s: %w", username, err)
	}

	return s.users.ListCourses(ctx, username)
}

// RemoveCourses filters codes out of the user's set. Removing an absent
// code is a no-op, and unknown catalog codes are allowed here — removal is
// a filter, and whatever got in must be removable.
func (s *UserService) RemoveCourses(ctx context.Context, username string, codes []string) ([]string, error) {
	normalized, err := s.normalizeCourseCodes(codes, false)
	if err != nil {
		return nil, err
	}

	if err := s.users.RemoveCourses(ctx, username, normalized); err != nil {
		return nil, fmt.Errorf("service/user: removing courses for %s: %w", username, err)
	}

	return s.users.ListCourses(ctx, username)
}

// normalizeCourseCodes uppercases, trims, deduplicates and (optionally)
// checks codes against the catalog. Blank entries are dropped.
func (s *UserService) normalizeCourseCodes(codes []string, requireKnown bool) ([]string, error) {
	seen := make(map[string]bool, len(codes))
	normalized := make([]string, 0, len(codes))

	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true

		if !catalog.ValidCourseCode(code) {
			return nil, apperror.ValidationFailed("courses",
				fmt.Sprintf("invalid course code %q", code))
		}
		if requireKnown && !s.catalog.Has(code) {
			return nil, apperror.ValidationFailed("courses",
				fmt.Sprintf("unknown course code %q", code))
		}

		normalized = append(normalized, code)
	}

	sort.Strings(normalized)
	return normalized, nil
}
