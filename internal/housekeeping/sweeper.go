package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/robfig/cron/v3"
)

const DefaultBatchSize = 500

// ExpiredSessionDeleter is the slice of the session store the sweeper needs.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Sweeper deletes expired sessions on a cron schedule. Expired sessions are
// already rejected on lookup; sweeping only reclaims storage.
type Sweeper struct {
	sessions  ExpiredSessionDeleter
	schedule  cron.Schedule
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewSweeper(sessions ExpiredSessionDeleter, cronExpr string, logger *slog.Logger) (*Sweeper, error) {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", cronExpr, err)
	}
	return &Sweeper{
		sessions:  sessions,
		schedule:  sched,
		batchSize: DefaultBatchSize,
		logger:    logger.With("component", "sweeper"),
		now:       time.Now,
	}, nil
}

// WithClock overrides the internal clock, used in tests.
func (s *Sweeper) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithBatchSize overrides how many rows one DELETE may remove.
func (s *Sweeper) WithBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// Start blocks, sweeping at every scheduled time until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("sweeper started", "next_run", s.schedule.Next(s.now()))

	for {
		wait := s.schedule.Next(s.now()).Sub(s.now())
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("sweeper shut down")
			return
		case <-timer.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep expired sessions", "error", err)
			}
		}
	}
}

// Sweep deletes every session expired as of now, one batch at a time, and
// returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() { metrics.SweeperCycleDuration.Observe(time.Since(start).Seconds()) }()

	cutoff := s.now()
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := s.sessions.DeleteExpired(ctx, cutoff, s.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		metrics.SessionsSweptTotal.Add(float64(n))

		if n < int64(s.batchSize) {
			break
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "swept expired sessions", "count", total)
	}
	return total, nil
}
