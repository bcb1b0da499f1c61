package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
)

type UserRepository interface {
	// FindOrCreate atomically inserts the user or returns the existing row.
	// Concurrent callers with the same email observe the same user ID.
	FindOrCreate(ctx context.Context, email string) (*domain.User, error)
	// FindByEmail returns domain.ErrUserNotFound when absent.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
}
