package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"finsights/internal/domain"
)

// Service runs one ingestion across all enabled category jobs: settings
// snapshot, capped concurrent fetches, parsing, windowed dedup, and run
// history. Overlapping triggers are skipped, not queued.
type Service struct {
	factory   ProviderFactory
	settings  SettingsSource
	news      NewsStore
	runs      RunStore
	symbols   SymbolStore
	publisher Publisher

	orchestrator *Orchestrator
	parser       *Parser
	logger       *slog.Logger

	inFlight atomic.Bool
}

func NewService(
	factory ProviderFactory,
	settings SettingsSource,
	news NewsStore,
	runs RunStore,
	symbols SymbolStore,
	publisher Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		factory:      factory,
		settings:     settings,
		news:         news,
		runs:         runs,
		symbols:      symbols,
		publisher:    publisher,
		orchestrator: NewOrchestrator(logger),
		parser:       NewParser(logger),
		logger:       logger,
	}
}

// RunIngestion executes one run for the named trigger. It returns
// domain.ErrRunInProgress without starting anything when another run is
// still executing. Failure to obtain a usable settings snapshot is the
// only run-fatal condition; everything else is contained per category.
func (s *Service) RunIngestion(ctx context.Context, trigger, triggeredBy string, now time.Time) (*domain.IngestionRun, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrRunInProgress
	}
	defer s.inFlight.Store(false)

	run := &domain.IngestionRun{
		ID:          uuid.NewString(),
		TriggerName: trigger,
		TriggeredBy: triggeredBy,
		StartedAt:   now,
		Status:      domain.RunPending,
	}

	if err := s.runs.Create(ctx, run); err != nil {
		// Run history is diagnostic; ingestion proceeds without it.
		s.logger.Warn("failed to record run start", "run_id", run.ID, "error", err)
	}

	s.logger.Info("starting ingestion run",
		"run_id", run.ID,
		"trigger", trigger,
		"triggered_by", triggeredBy,
	)

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return s.failRun(ctx, run, err), err
	}

	provider, err := s.factory.New(ctx, snap.APIKey, snap.Model)
	if err != nil {
		return s.failRun(ctx, run, err), err
	}

	symbolSet, err := s.loadSymbols(ctx)
	if err != nil {
		s.logger.Warn("symbol list unavailable, ticker matching disabled", "error", err)
	}

	run.Status = domain.RunRunning
	if err := s.runs.MarkRunning(ctx, run); err != nil {
		s.logger.Warn("failed to record run status", "run_id", run.ID, "error", err)
	}

	results := s.orchestrator.Run(ctx, provider, snap)

	for _, res := range results {
		outcome := s.processResult(ctx, snap, symbolSet, res, now)
		run.Outcomes = append(run.Outcomes, outcome)
	}

	run.Finalize(time.Now())

	if err := s.runs.Finalize(ctx, run); err != nil {
		s.logger.Error("failed to record run result", "run_id", run.ID, "error", err)
	}

	s.logger.Info("ingestion run finished",
		"run_id", run.ID,
		"status", string(run.Status),
		"categories", len(run.Outcomes),
		"items_added", run.ItemsAdded(),
	)

	return run, nil
}

// TriggerRunNow starts a run outside the schedule, typically from the
// admin panel. The overlap policy applies unchanged.
func (s *Service) TriggerRunNow(ctx context.Context, triggeredBy string) (*domain.IngestionRun, error) {
	return s.RunIngestion(ctx, "manual", triggeredBy, time.Now())
}

func (s *Service) failRun(ctx context.Context, run *domain.IngestionRun, cause error) *domain.IngestionRun {
	s.logger.Error("ingestion run aborted before dispatch", "run_id", run.ID, "error", cause)

	run.Finalize(time.Now())
	run.Status = domain.RunFailed

	if err := s.runs.Finalize(ctx, run); err != nil {
		s.logger.Error("failed to record run result", "run_id", run.ID, "error", err)
	}
	return run
}

func (s *Service) processResult(ctx context.Context, snap *domain.Snapshot, symbols map[string]struct{}, res JobResult, now time.Time) domain.CategoryOutcome {
	outcome := domain.CategoryOutcome{
		JobName:     res.Job.Name,
		Category:    res.Job.Category,
		Subcategory: res.Job.Subcategory,
		Attempts:    res.Attempts,
		Duration:    res.Duration,
	}

	if res.Err != nil {
		outcome.FailureKind = domain.KindOf(res.Err)
		outcome.Error = res.Err.Error()
		return outcome
	}

	items, err := s.parser.Parse(res.Job, res.Response, symbols, now)
	if err != nil {
		outcome.FailureKind = domain.KindOf(err)
		outcome.Error = err.Error()
		return outcome
	}

	for i := range items {
		item := &items[i]
		item.ID = uuid.NewString()
		item.Fingerprint = Fingerprint(item.Title, item.Summary)

		inserted, err := s.news.InsertIfNew(ctx, item, snap.DedupWindow)
		if err != nil {
			// Items already inserted in this run stay; the category is
			// reported failed from this point.
			outcome.FailureKind = domain.FailurePersistence
			outcome.Error = err.Error()
			return outcome
		}

		if !inserted {
			outcome.Duplicates++
			continue
		}
		outcome.ItemsAdded++

		if s.publisher != nil {
			if err := s.publisher.PublishNewsItem(ctx, item); err != nil {
				s.logger.Warn("failed to publish news item", "item_id", item.ID, "error", err)
			}
		}
	}

	outcome.Succeeded = true
	return outcome
}

func (s *Service) loadSymbols(ctx context.Context) (map[string]struct{}, error) {
	list, err := s.symbols.ActiveSymbols(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(list))
	for _, sym := range list {
		set[sym.Symbol] = struct{}{}
	}
	return set, nil
}
