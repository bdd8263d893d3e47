package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	receivables "bizledger/internal/receivables/domain"
)

// Scheduler triggers SweepAll on a fixed interval or once a day at DailyAt (UTC).
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	dailyAt  string
	tick     time.Duration
	logger   *zap.Logger
	lastRun  time.Time
}

// NewScheduler constructs a Scheduler. A positive interval takes precedence over dailyAt.
func NewScheduler(sweeper *Sweeper, interval time.Duration, dailyAt string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	tick := time.Minute
	if interval > 0 && interval < tick {
		tick = interval
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		dailyAt:  dailyAt,
		tick:     tick,
		logger:   logger,
	}
}

// Start begins the scheduler loop and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.sweeper == nil {
		return
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.runOnce(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	if s.interval > 0 {
		return s.lastRun.IsZero() || now.Sub(s.lastRun) >= s.interval
	}
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	if now.Hour() != hour || now.Minute() != minute {
		return false
	}
	return s.lastRun.IsZero() || now.Sub(s.lastRun) >= time.Hour
}

func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	s.lastRun = now
	result, err := s.sweeper.SweepAll(ctx)
	switch {
	case errors.Is(err, receivables.ErrStoreUnavailable):
		s.logger.Warn("scheduled sweep skipped: store unavailable", zap.Error(err))
	case err != nil:
		s.logger.Error("scheduled sweep failed", zap.Error(err))
	default:
		s.logger.Info("scheduled sweep done",
			zap.Int("companies", result.Companies),
			zap.Int("updated", result.UpdatedCount),
			zap.Int("failed", result.FailedCount),
		)
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
