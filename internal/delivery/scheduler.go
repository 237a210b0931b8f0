package delivery

import (
	"context"
	"log/slog"
	"time"
)

// SchedulerConfig contains retry scheduler configuration.
type SchedulerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Scheduler is the time-driven half of the retry machinery: it polls
// the store for records whose next attempt time has elapsed and offers
// them back to the dispatcher. All state lives in the delivery record,
// so the scheduler resumes cleanly after a restart.
type Scheduler struct {
	config     SchedulerConfig
	repo       Repository
	dispatcher *Dispatcher
	now        func() time.Time
}

// NewScheduler creates a new retry scheduler.
func NewScheduler(config SchedulerConfig, repo Repository, dispatcher *Dispatcher) *Scheduler {
	return &Scheduler{
		config:     config,
		repo:       repo,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Run polls for due records until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("retry scheduler started",
		"poll_interval", s.config.PollInterval,
		"batch_size", s.config.BatchSize,
	)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retry scheduler stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	records, err := s.repo.FetchDue(ctx, s.now(), s.config.BatchSize)
	if err != nil {
		slog.Error("failed to fetch due records", "error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	slog.Debug("redispatching due records", "count", len(records))

	for _, record := range records {
		if err := s.dispatcher.Redispatch(ctx, record); err != nil {
			slog.Error("failed to redispatch record", "record_id", record.ID, "error", err)
		}
	}
}
