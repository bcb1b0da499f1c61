package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AttemptLimiter keeps one sorted set of attempt timestamps per user and
// counts those inside a sliding window.
type AttemptLimiter struct {
	client redis.Cmdable
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewAttemptLimiter(client redis.Cmdable, window time.Duration) (*AttemptLimiter, error) {
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}
	return &AttemptLimiter{
		client: client,
		prefix: "otp:attempt",
		window: window,
		now:    time.Now,
	}, nil
}

// WithClock overrides the internal clock, used in tests.
func (l *AttemptLimiter) WithClock(clock func() time.Time) {
	if clock != nil {
		l.now = clock
	}
}

// RecordAttempt adds one attempt for userID and returns how many fall inside
// the window, this one included. Trim, add and count run in one MULTI so
// concurrent callers each see a distinct count.
func (l *AttemptLimiter) RecordAttempt(ctx context.Context, userID string) (int, error) {
	now := l.now()
	key := l.key(userID)
	threshold := strconv.FormatInt(now.Add(-l.window).UnixMilli(), 10)

	var card *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", threshold)
		p.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
		card = p.ZCard(ctx, key)
		p.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}
	return int(card.Val()), nil
}

func (l *AttemptLimiter) Reset(ctx context.Context, userID string) error {
	if err := l.client.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (l *AttemptLimiter) key(userID string) string {
	return l.prefix + ":" + userID
}
