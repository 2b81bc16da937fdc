// Package auth provides JWT token generation/validation and password
// hashing for the handbook API.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. Client registers or logs in with an institutional email + password
// 2. Server issues a signed access/refresh token pair
// 3. The client attaches the access token (Authorization: Bearer) to API calls
// 4. When the access token expires, the client calls /auth/refreshToken with
//    the refresh token to mint a new pair — the old refresh token is rotated
//    out and becomes permanently invalid
// 5. When the refresh token itself expires, the client must log in again
//
// Both tokens are HS256-signed JWTs carrying the username in the "sub" claim
// and the token kind ("access" or "refresh") in a private claim. Verification
// is a pure function of the secret and the clock — no DB lookup. The one
// stateful check (is this the CURRENT refresh token for the user?) lives in
// the auth service, not here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/campushq/handbook/internal/apperror"
)

// Default token lifetimes. Access tokens are short-lived so a stolen one is
// only briefly useful; refresh tokens are long-lived so students aren't
// re-entering passwords every fifteen minutes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	issuer = "handbook"
)

// TokenKind aliases the apperror kind so callers don't need both imports.
type TokenKind = apperror.TokenKind

const (
	TokenAccess  = apperror.TokenAccess
	TokenRefresh = apperror.TokenRefresh
)

// TokenPair bundles the two credentials issued together by login, register
// and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService signs and verifies session tokens.
//
// It holds the HMAC secret used for both operations. The secret should be
// at least 32 bytes of random data in production:
//
//	JWT_SECRET=$(openssl rand -hex 32)
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService with the default lifetimes.
func NewTokenService(secret string) (*TokenService, error) {
	return NewTokenServiceWithTTL(secret, DefaultAccessTTL, DefaultRefreshTTL)
}

// NewTokenServiceWithTTL creates a TokenService with custom lifetimes.
// Used by tests to mint already-expired tokens without sleeping.
func NewTokenServiceWithTTL(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// claims is the JWT payload: the standard registered claims plus the token
// kind. Without the kind claim a long-lived refresh token would double as an
// access token, silently stretching the access lifetime to a week.
type claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// IssueAccess creates a signed short-lived access token for the username.
func (s *TokenService) IssueAccess(username string) (string, error) {
	return s.issue(username, TokenAccess, s.accessTTL)
}

// IssueRefresh creates a signed long-lived refresh token for the username.
func (s *TokenService) IssueRefresh(username string) (string, error) {
	return s.issue(username, TokenRefresh, s.refreshTTL)
}

// IssuePair issues a fresh access/refresh pair for the username.
func (s *TokenService) IssuePair(username string) (*TokenPair, error) {
	access, err := s.IssueAccess(username)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefresh(username)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) issue(username string, kind TokenKind, ttl time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Kind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
			// Unique per token. Two refresh tokens minted in the same second
			// must still be distinct strings, or rotation cannot tell the new
			// token from the one it replaces.
			ID: xid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", kind, err)
	}

	return signed, nil
}

// Verify parses and validates a token of the expected kind and returns the
// username it binds.
//
// Failure modes are part of the protocol contract:
//   - apperror.ErrExpired (with the kind) when the expiry claim has passed,
//     so the client can distinguish "silently refresh" from "re-login"
//   - apperror.ErrUnauthorized for everything else: bad signature, wrong
//     secret, malformed payload, kind mismatch, missing subject
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired
//   - Issuer matches (prevents tokens minted by other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
func (s *TokenService) Verify(tokenStr string, kind TokenKind) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperror.ExpiredToken(kind)
		}
		return "", apperror.Unauthorized(fmt.Sprintf("invalid %s token", kind))
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", apperror.Unauthorized(fmt.Sprintf("invalid %s token", kind))
	}
	if c.Kind != string(kind) {
		// A refresh token presented where an access token is expected (or
		// vice versa) is invalid, not expired.
		return "", apperror.Unauthorized(fmt.Sprintf("token is not an %s token", kind))
	}
	if c.Subject == "" {
		return "", apperror.Unauthorized("token has no subject")
	}

	return c.Subject, nil
}
