package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
)

// SessionRepository persists sessions keyed by the SHA-256 of their token.
type SessionRepository interface {
	// Create returns domain.ErrSessionExists if the hash is already present.
	Create(ctx context.Context, s *domain.Session) error
	// Get returns domain.ErrSessionNotFound when absent.
	Get(ctx context.Context, tokenHash string) (*domain.Session, error)
	// Touch records use of the session and moves its expiry forward.
	Touch(ctx context.Context, tokenHash string, at, expiresAt time.Time) error
	Delete(ctx context.Context, tokenHash string) error
	// DeleteExpired removes up to limit sessions that expired before cutoff
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
