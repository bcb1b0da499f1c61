package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeLedger records which (user, bucket) codes have already been redeemed.
type CodeLedger struct {
	client redis.Cmdable
	prefix string
}

func NewCodeLedger(client redis.Cmdable) *CodeLedger {
	return &CodeLedger{client: client, prefix: "otp:used"}
}

// Claim is a single SET NX, so exactly one concurrent caller wins.
func (l *CodeLedger) Claim(ctx context.Context, userID string, bucket uint64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s:%s:%d", l.prefix, userID, bucket)
	ok, err := l.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}
