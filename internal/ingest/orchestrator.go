package ingest

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"finsights/internal/domain"
)

// JobResult is the resolution of one category fetch: a raw provider
// response or a typed failure, never both.
type JobResult struct {
	Job      domain.CategoryJob
	Response *domain.ProviderResponse
	Err      error
	Attempts int
	Duration time.Duration
}

// Orchestrator dispatches one fetch per enabled category job, bounded
// by the snapshot's concurrency cap and requests-per-minute ceiling.
// It performs no datastore writes; results go back to the caller.
type Orchestrator struct {
	logger *slog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run resolves every enabled job and returns once all have resolved,
// in job order. A failed category never aborts its siblings.
func (o *Orchestrator) Run(ctx context.Context, provider Provider, snap *domain.Snapshot) []JobResult {
	var jobs []domain.CategoryJob
	for _, job := range snap.Jobs {
		if job.Enabled {
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	// Stored settings can carry a literal 0 that bypassed validation;
	// a zero cap would deadlock SetLimit and a zero rpm divides by zero.
	maxConcurrent := snap.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	rpm := snap.RequestsPerMinute
	if rpm < 1 {
		rpm = 1
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)

	results := make([]JobResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = o.fetchJob(ctx, provider, limiter, snap, job)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) fetchJob(ctx context.Context, provider Provider, limiter *rate.Limiter, snap *domain.Snapshot, job domain.CategoryJob) JobResult {
	start := time.Now()
	result := JobResult{Job: job}

	req := domain.SummaryRequest{
		JobName:          job.Name,
		Query:            job.Query,
		MaxArticles:      job.MaxArticles,
		PreferredSources: snap.PreferredSources,
	}

	var lastErr error
	for attempt := 1; attempt <= snap.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := limiter.Wait(ctx); err != nil {
			lastErr = domain.NewFetchError(domain.FailureTimeout, err)
			break
		}

		reqCtx, cancel := context.WithTimeout(ctx, snap.RequestTimeout)
		resp, err := provider.Summarize(reqCtx, req)
		cancel()

		if err == nil {
			result.Response = resp
			result.Duration = time.Since(start)
			return result
		}
		lastErr = err

		kind := domain.KindOf(err)
		if !domain.IsTransient(kind) || attempt == snap.MaxAttempts {
			break
		}

		backoff := o.calculateBackoff(attempt, snap.InitialBackoff, snap.MaxBackoff)
		o.logger.Warn("fetch failed, retrying",
			"job", job.Name,
			"attempt", attempt,
			"kind", string(kind),
			"backoff", backoff,
			"error", err,
		)

		if err := o.sleep(ctx, backoff); err != nil {
			break
		}
	}

	result.Err = lastErr
	result.Duration = time.Since(start)
	return result
}

func (o *Orchestrator) calculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > max {
		backoff = max
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
