package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/campushq/handbook/internal/apperror"
	"github.com/campushq/handbook/internal/auth"
	"github.com/campushq/handbook/internal/service"
)

// UserHandler exposes the profile and the per-user enrolled-course list.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// HandleMe returns the caller's own profile.
//
// HTTP: GET /users
// Auth: required
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	user, err := h.users.Profile(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type profileInput struct {
	Program string `json:"program"`
	Major   string `json:"major"`
}

// HandleUpdateProfile sets the caller's program/major fields.
//
// HTTP: PUT /users/profile
// Auth: required
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var input profileInput
	if err := bindJSON(r, &input); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.UpdateProfile(r.Context(), username, input.Program, input.Major); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Profile(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type coursesInput struct {
	Courses []string `json:"courses" validate:"required"`
}

// HandleListCourses returns a user's enrolled course codes. Readable
// without authentication — the list is the public part of a profile.
//
// HTTP: GET /users/{username}/courseslist
func (h *UserHandler) HandleListCourses(w http.ResponseWriter, r *http.Request) {
	username := strings.ToLower(chi.URLParam(r, "username"))

	courses, err := h.users.Courses(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"courses": courses})
}

// HandleAddCourses unions codes into the user's list.
//
// HTTP: POST /users/{username}/courseslist
// Auth: required, self only
func (h *UserHandler) HandleAddCourses(w http.ResponseWriter, r *http.Request) {
	h.mutateCourses(w, r, h.users.AddCourses)
}

// HandleReplaceCourses swaps the user's whole list.
//
// HTTP: PUT /users/{username}/courseslist
// Auth: required, self only
func (h *UserHandler) HandleReplaceCourses(w http.ResponseWriter, r *http.Request) {
	h.mutateCourses(w, r, h.users.ReplaceCourses)
}

// HandleRemoveCourses filters codes out of the user's list.
//
// HTTP: DELETE /users/{username}/courseslist
// Auth: required, self only
func (h *UserHandler) HandleRemoveCourses(w http.ResponseWriter, r *http.Request) {
	h.mutateCourses(w, r, h.users.RemoveCourses)
}

// mutateCourses is the shared body of the three write endpoints: check the
// caller is editing their own list, bind the codes, apply, and return the
// updated list.
func (h *UserHandler) mutateCourses(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, username string, codes []string) ([]string, error),
) {
	caller, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	target := strings.ToLower(chi.URLParam(r, "username"))
	if target != caller {
		writeError(w, apperror.Forbidden("you can only edit your own course list"))
		return
	}

	var input coursesInput
	if err := bindJSON(r, &input); err != nil {
		writeError(w, err)
		return
	}

	courses, err := apply(r.Context(), caller, input.Courses)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"courses": courses})
}
