package domain

import (
	"errors"
	"time"
)

// Login failures. Each is distinguishable internally; the HTTP layer collapses
// them into a generic response.
var (
	ErrInvalidEmail          = errors.New("email address is malformed")
	ErrDomainNotAllowed      = errors.New("email domain is not allowed")
	ErrUnknownUser           = errors.New("unknown user")
	ErrDeliveryFailed        = errors.New("otp delivery failed")
	ErrInvalidOrExpiredCode  = errors.New("otp is invalid or expired")
	ErrSessionCreationFailed = errors.New("session creation failed")
	ErrTooManyAttempts       = errors.New("too many failed attempts")
)

// Storage outcomes.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session token already exists")
)

type User struct {
	ID          string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// Session is owned by the session store. Only the SHA-256 of the token is
// persisted; the raw token lives in the client's cookie.
type Session struct {
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	TouchedAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
