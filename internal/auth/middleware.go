package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/campushq/handbook/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package.
// Using a package-private type prevents collisions: only this package can
// create a key of type contextKey, so only this package can read or write
// the username value in the context.
type contextKey string

const usernameKey contextKey = "username"

// RequireAuth is a middleware that enforces authentication on protected
// routes. It reads the access token from the Authorization header
// ("Bearer <token>"), verifies it, and stores the username in the request
// context. A missing or invalid token stops the chain with 401; an expired
// access token is reported distinctly so the client knows to attempt a
// silent refresh rather than forcing a re-login.
//
// The legacy `?token=` query form is also accepted — the original frontend
// sends GET /users?token=... — but the header is the documented transport.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := extractUsername(r, tokens)
			if err != nil {
				if errors.Is(err, apperror.ErrExpired) {
					http.Error(w,
						`{"error":"token_expired","message":"access token expired"}`,
						http.StatusUnauthorized)
					return
				}
				http.Error(w,
					`{"error":"unauthorized","message":"valid authentication required"}`,
					http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UsernameFromContext retrieves the authenticated username from the request
// context. Returns ("", false) if the request is anonymous.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok && username != ""
}

// BearerToken extracts the raw token from the Authorization header without
// verifying it. Used by the refresh endpoint, which must verify against the
// refresh kind rather than the access kind.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return token, true
	}
	return "", false
}

// extractUsername pulls the access token from the request and verifies it.
// Shared helper for RequireAuth.
func extractUsername(r *http.Request, tokens *TokenService) (string, error) {
	token, ok := BearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", apperror.Unauthorized("missing access token")
	}

	return tokens.Verify(token, TokenAccess)
}
