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

// Rating dimension bounds. The predecessor accepted any number here;
// ratings are now clamped to the same 1–5 scale the frontend renders.
const (
	MinRating = 1
	MaxRating = 5

	// recommendLimit is how many courses the ranker returns.
	recommendLimit = 5

	maxCommentLength = 2000
)

// CourseService handles course info reads, the comment CRUD, and the
// recommendation ranking.
type CourseService struct {
	courses repository.CourseRepository
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewCourseService creates a CourseService.
func NewCourseService(courses repository.CourseRepository, cat *catalog.Catalog, logger *slog.Logger) *CourseService {
	return &CourseService{
		courses: courses,
		catalog: cat,
		logger:  logger,
	}
}

// CourseDetail merges the static handbook entry with the mutable comment
// collection.
type CourseDetail struct {
	BasicInfo *catalog.CourseInfo `json:"basicInfo"`
	Comments  []model.Comment     `json:"comments"`
}

// CommentInput carries a new comment's fields. All three rating dimensions
// are required; the validate tags reject absent or out-of-range values
// before the service sees them, and the service re-checks regardless.
type CommentInput struct {
	CourseCode string `json:"courseCode" validate:"required"`
	Text       string `json:"text" validate:"required"`
	Difficulty int    `json:"difficulty" validate:"required,min=1,max=5"`
	Usefulness int    `json:"usefulness" validate:"required,min=1,max=5"`
	Workload   int    `json:"workload" validate:"required,min=1,max=5"`
}

// Info returns a course's static metadata merged with its comments.
//
// The aggregate is created lazily: first lookup of a known course brings
// the (empty) comment collection into existence. Unknown static metadata is
// NotFound — the aggregate store never invents courses the handbook does
// not know.
func (s *CourseService) Info(ctx context.Context, code string) (*CourseDetail, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !catalog.ValidCourseCode(code) {
		return nil, apperror.ValidationFailed("courseCode",
			fmt.Sprintf("invalid course code %q", code))
	}

	info, err := s.catalog.Course(code)
	if err != nil {
		return nil, err
	}

	if err := s.courses.EnsureCourse(ctx, code); err != nil {
		return nil, fmt.Errorf("service/course: ensuring course %s: %w", code, err)
	}

	comments, err := s.courses.ListComments(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/course: listing comments for %s: %w", code, err)
	}

	return &CourseDetail{
		BasicInfo: info,
		Comments:  comments,
	}, nil
}

// CreateComment appends a rated comment by username to a course.
//
// The aggregate store is independent of the static catalog: commenting on a
// course the handbook has no entry for still works (the aggregate is
// created on first comment), only the code SHAPE is enforced.
func (s *CourseService) CreateComment(ctx context.Context, username string, input CommentInput) (*model.Comment, error) {
	code := strings.ToUpper(strings.TrimSpace(input.CourseCode))
	if !catalog.ValidCourseCode(code) {
		return nil, apperror.ValidationFailed("courseCode",
			fmt.Sprintf("invalid course code %q", code))
	}

	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "comment text is required")
	}
	if len(text) > maxCommentLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("comment must be %d characters or less", maxCommentLength))
	}

	if err := validateRating("difficulty", input.Difficulty); err != nil {
		return nil, err
	}
	if err := validateRating("usefulness", input.Usefulness); err != nil {
		return nil, err
	}
	if err := validateRating("workload", input.Workload); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		CourseCode: code,
		Username:   username,
		Text:       text,
		Difficulty: input.Difficulty,
		Usefulness: input.Usefulness,
		Workload:   input.Workload,
	}
	if err := s.courses.AddComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("service/course: creating comment on %s: %w", code, err)
	}

	s.logger.Info("comment created",
		slog.String("id", comment.ID),
		slog.String("courseCode", code),
		slog.String("username", username),
	)

	return comment, nil
}

// DeleteComment removes a comment by id. Only the comment's author may
// delete it — the predecessor let any authenticated user delete anything,
// which was a bug, not a policy.
func (s *CourseService) DeleteComment(ctx context.Context, username, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("commentID", "comment id is required")
	}

	comment, err := s.courses.GetComment(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("comment", id)
		}
		return fmt.Errorf("service/course: fetching comment %s: %w", id, err)
	}

	if comment.Username != username {
		return apperror.Forbidden("only the comment's author can delete it")
	}

	if err := s.courses.DeleteComment(ctx, id); err != nil {
		return fmt.Errorf("service/course: deleting comment %s: %w", id, err)
	}

	s.logger.Info("comment deleted",
		slog.String("id", id),
		slog.String("username", username),
	)

	return nil
}

// Recommend ranks commented courses by their mean ratings and returns the
// top 5: most useful first, ties broken by lighter workload, then by lower
// difficulty. Courses with no comments are excluded — a mean over zero
// values is undefined, not zero.
//
// Recomputed on demand; with per-course means coming straight out of the
// store this is a sort over at most a few thousand rows.
func (s *CourseService) Recommend(ctx context.Context) ([]model.RatingSummary, error) {
	summaries, err := s.courses.RatingSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/course: computing rating summaries: %w", err)
	}

	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.Usefulness != b.Usefulness {
			return a.Usefulness > b.Usefulness
		}
		if a.Workload != b.Workload {
			return a.Workload < b.Workload
		}
		if a.Difficulty != b.Difficulty {
			return a.Difficulty < b.Difficulty
		}
		// Equal on all three dimensions: course code keeps the order stable.
		return a.CourseCode < b.CourseCode
	})

	if len(summaries) > recommendLimit {
		summaries = summaries[:recommendLimit]
	}
	return summaries, nil
}

// validateRating enforces the 1–5 bound on one rating dimension.
func validateRating(field string, value int) error {
	if value < MinRating || value > MaxRating {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be between %d and %d", field, MinRating, MaxRating))
	}
	return nil
}

// Program returns a program's static handbook entry.
func (s *CourseService) Program(ctx context.Context, code string) (*catalog.ProgramInfo, error) {
	code = strings.TrimSpace(code)
	if !catalog.ValidProgramCode(code) {
		return nil, apperror.ValidationFailed("programCode",
			fmt.Sprintf("invalid program code %q", code))
	}
	return s.catalog.Program(code)
}

// ProgramCourses returns the full course entries offered under a program.
// Stateless and keyed by the explicit code — there is no memory of the
// previously looked-up program.
func (s *CourseService) ProgramCourses(ctx context.Context, code string) ([]catalog.CourseInfo, error) {
	code = strings.TrimSpace(code)
	if !catalog.ValidProgramCode(code) {
		return nil, apperror.ValidationFailed("programCode",
			fmt.Sprintf("invalid program code %q", code))
	}
	return s.catalog.ProgramCourses(code)
}
