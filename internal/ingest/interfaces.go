package ingest

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"finsights/internal/domain"
)

// Provider issues one grounded summarization request.
type Provider interface {
	Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.ProviderResponse, error)
}

// ProviderFactory builds a Provider from the API key in a settings
// snapshot at run start.
type ProviderFactory interface {
	New(ctx context.Context, apiKey, model string) (Provider, error)
}

// SettingsSource yields the immutable snapshot a run works from.
type SettingsSource interface {
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
}

// NewsStore persists news items with windowed dedup semantics.
type NewsStore interface {
	// InsertIfNew inserts the item unless another item with the same
	// category and fingerprint exists within the window. Returns true
	// when a row was inserted.
	InsertIfNew(ctx context.Context, item *domain.NewsItem, window time.Duration) (bool, error)
}

// RunStore records ingestion run history for the admin panel.
type RunStore interface {
	Create(ctx context.Context, run *domain.IngestionRun) error
	MarkRunning(ctx context.Context, run *domain.IngestionRun) error
	Finalize(ctx context.Context, run *domain.IngestionRun) error
}

// SymbolStore provides the known ticker list for symbol extraction.
type SymbolStore interface {
	ActiveSymbols(ctx context.Context) ([]domain.StockSymbol, error)
}

// Publisher emits newly inserted items to downstream consumers.
type Publisher interface {
	PublishNewsItem(ctx context.Context, item *domain.NewsItem) error
	Close() error
}
