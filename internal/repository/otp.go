package repository

import (
	"context"
	"time"
)

// CodeLedger enforces single use of a code. Claim returns true only for the
// first caller for a given (userID, bucket).
type CodeLedger interface {
	Claim(ctx context.Context, userID string, bucket uint64, ttl time.Duration) (bool, error)
}

// AttemptLimiter counts verification attempts per user within a sliding
// window. RecordAttempt must add and count atomically: it returns the number
// of attempts in the window including the one just recorded.
type AttemptLimiter interface {
	RecordAttempt(ctx context.Context, userID string) (int, error)
	Reset(ctx context.Context, userID string) error
}
