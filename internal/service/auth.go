// Package service contains the business logic layer of the application.
//
// Handlers parse HTTP and write responses; services validate, enforce the
// business rules, and orchestrate; repositories read and write the
// database. Services receive repository interfaces, never concrete sqlite
// types, so tests swap in in-memory fakes.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/campushq/handbook/internal/apperror"
	"github.com/campushq/handbook/internal/auth"
	"github.com/campushq/handbook/internal/model"
	"github.com/campushq/handbook/internal/repository"
)

const (
	// DefaultEmailDomain is the institutional mail domain usernames must
	// belong to. Overridable for other deployments via EMAIL_DOMAIN.
	DefaultEmailDomain = "ad.unsw.edu.au"

	// verificationTTL bounds how long a registration code stays usable.
	verificationTTL = 10 * time.Minute

	minPasswordLength = 8
	maxNicknameLength = 30
)

// AuthService handles registration, login, token refresh and nickname
// assignment.
type AuthService struct {
	users      repository.UserRepository
	codes      repository.CodeRepository
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	usernameRe *regexp.Regexp
	logger     *slog.Logger
}

// NewAuthService creates an AuthService. emailDomain may be empty, in which
// case DefaultEmailDomain applies.
func NewAuthService(
	users repository.UserRepository,
	codes repository.CodeRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	emailDomain string,
	logger *slog.Logger,
) *AuthService {
	if emailDomain == "" {
		emailDomain = DefaultEmailDomain
	}
	// Institutional address shape: "z" + 7 digits + the mail domain.
	usernameRe := regexp.MustCompile(`^z\d{7}@` + regexp.QuoteMeta(emailDomain) + `$`)

	return &AuthService{
		users:      users,
		codes:      codes,
		tokens:     tokens,
		passwords:  passwords,
		usernameRe: usernameRe,
		logger:     logger,
	}
}

// RegisterInput carries the registration request fields.
type RegisterInput struct {
	Username         string `json:"username" validate:"required"`
	Password         string `json:"password" validate:"required"`
	VerificationCode string `json:"verificationCode" validate:"required"`
}

// RequestVerificationCode issues a fresh registration code for the address
// and returns it so the caller can deliver it out-of-band. At most one code
// is pending per address; re-requesting replaces it.
//
// Delivery is the caller's concern — in this deployment the code is logged,
// an SMTP sender can be slotted in at the call site later.
func (s *AuthService) RequestVerificationCode(ctx context.Context, username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !s.usernameRe.MatchString(username) {
		return "", apperror.ValidationFailed("username",
			"username must be an institutional address (z followed by 7 digits)")
	}

	// Don't issue codes for addresses that already have an account.
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return "", apperror.Conflict("user", username)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return "", fmt.Errorf("service/auth: checking username %s: %w", username, err)
	}

	code, err := randomDigits(6)
	if err != nil {
		return "", fmt.Errorf("service/auth: generating verification code: %w", err)
	}

	if err := s.codes.PutCode(ctx, username, code, time.Now().Add(verificationTTL)); err != nil {
		return "", fmt.Errorf("service/auth: storing verification code: %w", err)
	}

	s.logger.Info("verification code issued",
		slog.String("username", username),
		slog.String("code", code), // stand-in for an email sender
	)

	return code, nil
}

// Register creates an account and returns its first token pair.
//
// Checks run in a fixed order so the caller always gets the most useful
// failure: username shape, password strength, existing account, then the
// verification code. The code is single-use — consumed on success.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*auth.TokenPair, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))

	if !s.usernameRe.MatchString(username) {
		return nil, apperror.ValidationFailed("username",
			"username must be an institutional address (z followed by 7 digits)")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperror.Conflict("user", username)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking username %s: %w", username, err)
	}

	if err := s.checkVerificationCode(ctx, username, input.VerificationCode); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	nickname, err := s.pickNickname(ctx)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Nickname:     nickname,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user %s: %w", username, err)
	}

	// Codes are single-use. A failure here leaves a spent code behind for
	// ten minutes, which is harmless; the account already exists.
	if err := s.codes.DeleteCode(ctx, username); err != nil {
		s.logger.Warn("failed to delete spent verification code",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("user registered",
		slog.String("username", username),
		slog.String("nickname", nickname),
	)

	return s.issueSession(ctx, username)
}

// Login verifies credentials and returns a fresh token pair. Issuing a new
// pair displaces any previous refresh token for the user.
func (s *AuthService) Login(ctx context.Context, username, password string) (*auth.TokenPair, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("service/auth: looking up user %s: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("incorrect password")
	}

	s.logger.Info("user logged in", slog.String("username", username))

	return s.issueSession(ctx, username)
}

// Refresh exchanges a valid refresh token for a new pair, rotating the old
// token out.
//
// The rotation check-and-set is atomic at the repository, so of two
// concurrent refreshes with the same token exactly one wins; the loser gets
// Unauthorized and must log in again. A rotated-out token can never come
// back: the "no user holds this value" lookup fails first.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	user, err := s.users.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("refresh token is not recognised")
		}
		return nil, fmt.Errorf("service/auth: looking up refresh token: %w", err)
	}

	// Signature/expiry verification. ExpiredToken(refresh) passes through
	// so the client knows a re-login is due rather than a retry.
	username, err := s.tokens.Verify(refreshToken, auth.TokenRefresh)
	if err != nil {
		return nil, err
	}
	if username != user.Username {
		return nil, apperror.Unauthorized("refresh token subject mismatch")
	}

	pair, err := s.tokens.IssuePair(username)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing tokens for %s: %w", username, err)
	}

	if err := s.users.RotateRefreshToken(ctx, username, refreshToken, pair.RefreshToken); err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			return nil, apperror.Unauthorized("refresh token is no longer valid")
		}
		return nil, fmt.Errorf("service/auth: rotating refresh token for %s: %w", username, err)
	}

	s.logger.Info("tokens refreshed", slog.String("username", username))

	return pair, nil
}

// SubmitNickname sets the authenticated user's display name.
func (s *AuthService) SubmitNickname(ctx context.Context, username, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return apperror.ValidationFailed("nickName", "nickname is required")
	}
	if len(nickname) > maxNicknameLength {
		return apperror.ValidationFailed("nickName",
			fmt.Sprintf("nickname must be %d characters or less", maxNicknameLength))
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("user", username)
		}
		return fmt.Errorf("service/auth: looking up user %s: %w", username, err)
	}

	// Keeping your own nickname is a no-op, not a conflict.
	if user.Nickname == nickname {
		return nil
	}

	if err := s.users.UpdateNickname(ctx, username, nickname); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return apperror.Conflict("nickname", nickname)
		}
		return fmt.Errorf("service/auth: updating nickname for %s: %w", username, err)
	}

	s.logger.Info("nickname updated",
		slog.String("username", username),
		slog.String("nickname", nickname),
	)

	return nil
}

// issueSession mints a token pair and records the refresh token as the
// user's only valid one.
func (s *AuthService) issueSession(ctx context.Context, username string) (*auth.TokenPair, error) {
	pair, err := s.tokens.IssuePair(username)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing tokens for %s: %w", username, err)
	}

	if err := s.users.SetRefreshToken(ctx, username, pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("service/auth: storing refresh token for %s: %w", username, err)
	}

	return pair, nil
}

func (s *AuthService) checkVerificationCode(ctx context.Context, username, code string) error {
	stored, expiresAt, err := s.codes.GetCode(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("verificationCode",
				"no verification code has been requested for this address")
		}
		return fmt.Errorf("service/auth: looking up verification code: %w", err)
	}

	if time.Now().After(expiresAt) {
		return apperror.ValidationFailed("verificationCode", "verification code has expired")
	}
	if stored != strings.TrimSpace(code) {
		return apperror.ValidationFailed("verificationCode", "verification code is incorrect")
	}

	return nil
}

// pickNickname generates "user" + 6 random digits. The collision check is
// best-effort and runs once: if the second candidate also collides, the
// UNIQUE constraint on users.nickname has the final say at insert time.
func (s *AuthService) pickNickname(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		suffix, err := randomDigits(6)
		if err != nil {
			return "", fmt.Errorf("service/auth: generating nickname: %w", err)
		}
		nickname := "user" + suffix

		taken, err := s.users.NicknameTaken(ctx, nickname)
		if err != nil {
			return "", fmt.Errorf("service/auth: checking nickname: %w", err)
		}
		if !taken {
			return nickname, nil
		}
	}
	return "", apperror.Conflict("nickname", "generated")
}

// validatePassword enforces the strength rule: at least 8 characters with
// an upper-case letter, a lower-case letter, and a digit.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return apperror.ValidationFailed("password",
			"password must contain an upper-case letter, a lower-case letter, and a digit")
	}

	return nil
}

// randomDigits returns n cryptographically random decimal digits.
func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	digits := make([]byte, n)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits), nil
}
