// Package scheduler runs the periodic sweeps over waitlist offers,
// finished events and the outbox.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

// Sweeper is the part of the service the sweeps drive.
type Sweeper interface {
	ExpireWaitlistOffers(ctx context.Context, now time.Time) ([]model.Event, error)
	CompletePastEvents(ctx context.Context, now time.Time) ([]model.Event, error)
}

// Flusher relays pending outbox rows.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// Scheduler wraps a cron runner with a single sweep job.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	flusher Flusher
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// New registers the sweep on schedule (standard five-field cron or @every).
func New(schedule string, sweeper Sweeper, flusher Flusher, logger *slog.Logger, now func() time.Time) (*Scheduler, error) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s := &Scheduler{
		sweeper: sweeper,
		flusher: flusher,
		logger:  logger,
		now:     now,
		timeout: 50 * time.Second,
	}
	cl := cronLogger{logger: logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop halts the schedule; the returned context is done once a running
// sweep finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce performs one sweep. Failures are logged; the next tick retries.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := s.now()

	expired, err := s.sweeper.ExpireWaitlistOffers(ctx, now)
	if err != nil {
		s.logger.Error("expire waitlist offers", "error", err)
	}
	completed, err := s.sweeper.CompletePastEvents(ctx, now)
	if err != nil {
		s.logger.Error("complete past events", "error", err)
	}
	relayed, err := s.flusher.Flush(ctx)
	if err != nil {
		s.logger.Error("flush outbox", "error", err)
	}

	if len(expired)+len(completed)+relayed > 0 {
		s.logger.Info("sweep finished",
			"offers_changed", len(expired), "events_completed", len(completed), "outbox_relayed", relayed)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
