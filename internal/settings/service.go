package settings

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"finsights/internal/domain"
)

// Store persists the settings record. Save must be atomic: either the
// whole record changes or none of it.
type Store interface {
	Load(ctx context.Context) (domain.Settings, error)
	Save(ctx context.Context, cfg domain.Settings) error
}

// JobStore lists the configured category jobs.
type JobStore interface {
	ListEnabled(ctx context.Context) ([]domain.CategoryJob, error)
}

// KeyValidator confirms an API key with a minimal provider test call.
type KeyValidator interface {
	ValidateKey(ctx context.Context, apiKey, model string) error
}

// Service is the single mutation entry point for settings. Runs read
// via Snapshot and never observe a half-applied update.
type Service struct {
	store    Store
	jobs     JobStore
	keys     KeyValidator
	validate *validator.Validate
	logger   *slog.Logger

	mu sync.Mutex
}

func NewService(store Store, jobs JobStore, keys KeyValidator, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		jobs:     jobs,
		keys:     keys,
		validate: validator.New(),
		logger:   logger,
	}
}

// Snapshot returns the settings value in effect now plus the enabled
// category jobs. A missing API key fails the snapshot, which aborts the
// calling run before any dispatch.
func (s *Service) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	cfg, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, domain.ErrNotConfigured
	}

	jobs, err := s.jobs.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list category jobs: %w", err)
	}

	return &domain.Snapshot{Settings: cfg, Jobs: jobs}, nil
}

// Update validates and commits a new settings record. A changed API key
// is verified against the provider first; the update is rejected with
// domain.ErrInvalidCredential when the test call fails.
func (s *Service) Update(ctx context.Context, next domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate.Struct(next); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}

	current, err := s.store.Load(ctx)
	if err != nil || next.APIKey != current.APIKey {
		if err := s.keys.ValidateKey(ctx, next.APIKey, next.Model); err != nil {
			return err
		}
	}

	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	s.logger.Info("settings updated",
		"model", next.Model,
		"max_concurrent", next.MaxConcurrent,
		"requests_per_minute", next.RequestsPerMinute,
	)
	return nil
}
