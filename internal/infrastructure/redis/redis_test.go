package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestNewClient_ParsesURLAndPings(t *testing.T) {
	_, server := newTestRedis(t)

	client, err := NewClient(context.Background(), "redis://"+server.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = NewClient(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestCodeLedger_ClaimOnce(t *testing.T) {
	client, server := newTestRedis(t)
	ledger := NewCodeLedger(client)
	ctx := context.Background()

	ok, err := ledger.Claim(ctx, "user-1", 42, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.Claim(ctx, "user-1", 42, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim of the same bucket must lose")

	ok, err = ledger.Claim(ctx, "user-1", 43, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a different bucket is a different code")

	ok, err = ledger.Claim(ctx, "user-2", 42, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a different user is a different code")

	ttl := server.TTL("otp:used:user-1:42")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 10*time.Minute)
}

func TestCodeLedger_ConcurrentClaims(t *testing.T) {
	client, _ := newTestRedis(t)
	ledger := NewCodeLedger(client)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Claim(context.Background(), "user-1", 7, time.Minute)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestCodeLedger_ExpiredClaimFreesKey(t *testing.T) {
	client, server := newTestRedis(t)
	ledger := NewCodeLedger(client)
	ctx := context.Background()

	_, err := ledger.Claim(ctx, "user-1", 1, time.Minute)
	require.NoError(t, err)

	server.FastForward(2 * time.Minute)

	ok, err := ledger.Claim(ctx, "user-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttemptLimiter_SlidingWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	limiter, err := NewAttemptLimiter(client, 5*time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	limiter.WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := limiter.RecordAttempt(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	now = now.Add(4 * time.Minute)
	n, err := limiter.RecordAttempt(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// The first three fall out of the window.
	now = now.Add(2 * time.Minute)
	n, err = limiter.RecordAttempt(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = limiter.RecordAttempt(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAttemptLimiter_ConcurrentAttemptsGetDistinctCounts(t *testing.T) {
	client, _ := newTestRedis(t)
	limiter, err := NewAttemptLimiter(client, time.Minute)
	require.NoError(t, err)

	const workers = 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = make(map[int]int)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := limiter.RecordAttempt(context.Background(), "user-1")
			assert.NoError(t, err)
			mu.Lock()
			counts[n]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, counts, workers)
	for i := 1; i <= workers; i++ {
		assert.Equal(t, 1, counts[i], "count %d", i)
	}
}

func TestAttemptLimiter_Reset(t *testing.T) {
	client, server := newTestRedis(t)
	limiter, err := NewAttemptLimiter(client, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = limiter.RecordAttempt(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, server.Exists("otp:attempt:user-1"))

	require.NoError(t, limiter.Reset(ctx, "user-1"))
	assert.False(t, server.Exists("otp:attempt:user-1"))

	n, err := limiter.RecordAttempt(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewAttemptLimiter_RejectsNonPositiveWindow(t *testing.T) {
	_, err := NewAttemptLimiter(nil, 0)
	assert.Error(t, err)
}
