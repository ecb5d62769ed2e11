package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/GoldenRal/modSTR/pkg/logger"
	"github.com/GoldenRal/modSTR/pkg/metrics"
)

const (
	defaultInterval = time.Minute
	jobName         = "usage_rollover"
)

type quotaService interface {
	RolloverStale(ctx context.Context, now time.Time) error
}

// SchedulerParams configure the usage scheduler.
type SchedulerParams struct {
	Logger   *logger.Logger
	Quota    quotaService
	Lock     Lock
	Metrics  *metrics.SchedulerMetrics
	Interval time.Duration
	Now      func() time.Time
}

// Scheduler sweeps stale usage ledgers on a fixed cadence. The quota
// service also rolls ledgers over lazily on read; the sweep keeps idle
// accounts from carrying last month's counters indefinitely.
type Scheduler struct {
	logg     *logger.Logger
	quota    quotaService
	lock     Lock
	metrics  *metrics.SchedulerMetrics
	interval time.Duration
	now      func() time.Time
}

// NewScheduler builds a usage scheduler.
func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Quota == nil {
		return nil, fmt.Errorf("quota service required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		logg:     params.Logger,
		quota:    params.Quota,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      now,
	}, nil
}

// Run starts the scheduler loop until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "usage rollover cycle failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "usage scheduler context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "usage rollover cycle failed", err)
			}
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another scheduler instance is running; skipping this cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release scheduler lock", relErr)
		}
	}()

	jobCtx := s.logg.WithField(ctx, "job", jobName)
	start := time.Now()
	err = s.quota.RolloverStale(jobCtx, s.now())
	duration := time.Since(start)
	s.metrics.ObserveDuration(jobName, duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(jobName)
		s.logg.Error(jobCtx, "usage rollover failed", err)
		return nil
	}
	s.metrics.IncSuccess(jobName)
	s.logg.Info(jobCtx, "usage rollover complete")
	return nil
}
