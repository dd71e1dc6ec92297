package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"finsights/internal/domain"
)

// Runner is the single ingestion entry point the scheduler drives.
type Runner interface {
	RunIngestion(ctx context.Context, trigger, triggeredBy string, now time.Time) (*domain.IngestionRun, error)
}

// TriggerStore lists the configured named triggers.
type TriggerStore interface {
	ListEnabledTriggers(ctx context.Context) ([]domain.Trigger, error)
}

// Scheduler fires named triggers (pre-market, post-market, refresh) on
// their cron specs. Overlapping fires are skipped with a warning, never
// queued; occurrences missed while the process was down are not
// backfilled.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	triggers   TriggerStore
	runTimeout time.Duration
	logger     *slog.Logger

	baseCtx context.Context
}

func New(runner Runner, triggers TriggerStore, runTimeout time.Duration, loc *time.Location, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		runner:     runner,
		triggers:   triggers,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Start registers all enabled triggers and blocks until ctx is
// cancelled, then waits for any in-flight run to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx

	triggers, err := s.triggers.ListEnabledTriggers(ctx)
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}

	for _, t := range triggers {
		name := t.Name
		if _, err := s.cron.AddFunc(t.CronSpec, func() { s.fire(name) }); err != nil {
			return fmt.Errorf("register trigger %s: %w", name, err)
		}
		s.logger.Info("registered trigger", "trigger", name, "spec", t.CronSpec)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "triggers", len(triggers))

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")

	return ctx.Err()
}

func (s *Scheduler) fire(trigger string) {
	runCtx, cancel := context.WithTimeout(s.baseCtx, s.runTimeout)
	defer cancel()

	run, err := s.runner.RunIngestion(runCtx, trigger, "scheduler", time.Now())
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		s.logger.Warn("skipping trigger, run already in progress", "trigger", trigger)
	case err != nil:
		s.logger.Error("ingestion run failed", "trigger", trigger, "error", err)
	default:
		s.logger.Info("trigger completed",
			"trigger", trigger,
			"run_id", run.ID,
			"status", string(run.Status),
			"items_added", run.ItemsAdded(),
		)
	}
}
