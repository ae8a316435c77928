package invite

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gatherhq/gather/pkg/observability"
)

// DefaultSweepSchedule runs the expiry sweep at the top of every hour.
const DefaultSweepSchedule = "0 * * * *"

// Sweeper periodically counts invite codes whose expiry deadline passed
// since the previous sweep. Expiry itself needs no write: Status is
// derived from expires_at, so the sweep only surfaces the transition in
// logs and metrics.
type Sweeper struct {
	store   *Store
	logger  *observability.Logger
	metrics *observability.Metrics
	cron    *cron.Cron

	mu      sync.Mutex
	lastRun time.Time
}

// NewSweeper creates a sweeper; Start schedules it.
func NewSweeper(store *Store, logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		store:   store,
		logger:  logger,
		metrics: metrics,
		cron:    cron.New(),
		lastRun: time.Now().UTC(),
	}
}

// Start schedules the sweep on the given cron expression (empty means
// DefaultSweepSchedule).
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		s.RunOnce(context.Background())
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.WithField("schedule", schedule).Info("invite expiry sweeper started")
	return nil
}

// Stop halts the schedule; a sweep in flight finishes.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce performs a single sweep, reporting codes that expired since
// the previous run. Returns the count observed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	count, err := s.store.CountExpiredBetween(ctx, s.lastRun, now)
	if err != nil {
		s.logger.WithError(err).Warn("invite expiry sweep failed")
		return 0
	}
	s.lastRun = now

	if count > 0 {
		s.metrics.InviteCodesExpiredTotal.Add(float64(count))
		s.logger.WithField("expired", count).Info("invite codes expired")
	}
	return count
}
