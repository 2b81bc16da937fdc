package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campushq/handbook/internal/apperror"
	"github.com/campushq/handbook/internal/auth"
	"github.com/campushq/handbook/internal/service"
)

// CourseHandler exposes course info, comments, the recommendation ranking,
// and the static program views.
type CourseHandler struct {
	courses *service.CourseService
	logger  *slog.Logger
}

// NewCourseHandler creates a CourseHandler.
func NewCourseHandler(courses *service.CourseService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{
		courses: courses,
		logger:  logger,
	}
}

// HandleInfo returns a course's static entry with its comments.
//
// HTTP: GET /course/{code}
func (h *CourseHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	detail, err := h.courses.Info(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleRecommend returns the top courses by mean rating.
//
// HTTP: GET /course/recommend
func (h *CourseHandler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.courses.Recommend(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": summaries})
}

// HandleCreateComment appends a rated comment to a course.
//
// HTTP: POST /course/comment
// Auth: required
func (h *CourseHandler) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var input service.CommentInput
	if err := bindJSON(r, &input); err != nil {
		writeError(w, err)
		return
	}

	comment, err := h.courses.CreateComment(r.Context(), username, input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, comment)
}

// HandleDeleteComment removes one of the caller's comments.
//
// HTTP: DELETE /course/comment/{id}
// Auth: required, author only
func (h *CourseHandler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	if err := h.courses.DeleteComment(r.Context(), username, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "comment deleted"})
}

// HandleProgram returns a degree program's static entry.
//
// HTTP: GET /program/{code}
func (h *CourseHandler) HandleProgram(w http.ResponseWriter, r *http.Request) {
	program, err := h.courses.Program(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, program)
}

// HandleProgramCourses returns the course entries offered under a program.
//
// HTTP: GET /program/{code}/courses
func (h *CourseHandler) HandleProgramCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ProgramCourses(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}
