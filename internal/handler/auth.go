package handler

import (
	"log/slog"
	"net/http"

	"github.com/campushq/handbook/internal/apperror"
	"github.com/campushq/handbook/internal/auth"
	"github.com/campushq/handbook/internal/service"
)

// AuthHandler exposes the account lifecycle: verification codes,
// registration, login, token refresh, and nickname assignment.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authSvc,
		logger: logger,
	}
}

type requestCodeInput struct {
	Username string `json:"username" validate:"required"`
}

// HandleRequestCode issues a registration verification code.
//
// HTTP: POST /auth/requestCode
//
// The code itself is delivered out-of-band (logged, pending a mail sender),
// never echoed in the response — an attacker who can reach this endpoint
// must not be able to register someone else's address.
func (h *AuthHandler) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	var input requestCodeInput
	if err := bindJSON(r, &input); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.auth.RequestVerificationCode(r.Context(), input.Username); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "verification code sent",
	})
}

// HandleRegister creates an account and returns its first token pair.
//
// HTTP: POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if err := bindJSON(r, &input); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.auth.Register(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pair)
}

type loginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin verifies credentials and returns a fresh token pair.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var input loginInput
	if err := bindJSON(r, &input); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.auth.Login(r.Context(), input.Username, input.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

type refreshInput struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh exchanges a refresh token for a new pair.
//
// HTTP: POST /auth/refreshToken
//
// The token rides the Authorization header ("Bearer <refresh>"); a JSON
// body {"refreshToken": "..."} is accepted as a fallback. This route sits
// outside RequireAuth — its credential is the refresh token itself.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		var input refreshInput
		if err := bindJSON(r, &input); err == nil {
			token = input.RefreshToken
		}
	}
	if token == "" {
		writeError(w, apperror.Unauthorized("refresh token is required"))
		return
	}

	pair, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

type nicknameInput struct {
	NickName string `json:"nickName" validate:"required"`
}

// HandleSubmitNickname sets the caller's display name.
//
// HTTP: POST /auth/submitNickname
// Auth: required
func (h *AuthHandler) HandleSubmitNickname(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var input nicknameInput
	if err := bindJSON(r, &input); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.SubmitNickname(r.Context(), username, input.NickName); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "nickname updated",
	})
}
