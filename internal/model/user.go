// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered student account.
//
// The external identifier is the institutional email address (zID form:
// "z" + 7 digits + the university domain). We still generate our own
// internal string ID (xid) so primary keys aren't tied to the address —
// if the university ever changes its mail domain, only usernames change.
//
// PasswordHash holds a bcrypt hash, never the plaintext. It is tagged
// `json:"-"` so it can never leak through an API response.
//
// RefreshToken is the most recently issued refresh token for this user.
// Exactly one refresh token is valid per user at a time: issuing a new one
// overwrites this value and permanently invalidates the old token.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"` // institutional email, e.g. "z1234567@ad.unsw.edu.au"
	PasswordHash string    `json:"-"`
	Nickname     string    `json:"nickname"` // unique display name, auto-generated at registration
	Program      string    `json:"program"`
	Major        string    `json:"major"`
	Courses      []string  `json:"courses"` // enrolled course codes, uppercase, set semantics
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
