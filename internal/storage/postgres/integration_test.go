//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"finsights/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_news.up.sql"),
			filepath.Join(migrationsPath, "002_create_runs.up.sql"),
			filepath.Join(migrationsPath, "003_create_settings.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM citations")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM news_items")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM category_outcomes")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM ingestion_runs")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM settings")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func newsItem(id, category, fingerprint string, fetchedAt time.Time) *domain.NewsItem {
	return &domain.NewsItem{
		ID:             id,
		Category:       category,
		Subcategory:    "banking",
		Symbols:        []string{"HDFCBANK"},
		Title:          "HDFC Bank shares rally after results",
		Summary:        "The stock rose 4% on strong profit growth.",
		Content:        "Full article body.",
		NewsType:       domain.NewsTypeArticle,
		SentimentScore: 5,
		Citations: []domain.Citation{
			{Index: 1, URL: "https://www.moneycontrol.com/news/x", Title: "moneycontrol"},
		},
		FetchedAt:   fetchedAt,
		Fingerprint: fingerprint,
	}
}

func (s *PostgresIntegrationSuite) TestNewsStore_InsertIfNew() {
	store := NewNewsStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	inserted, err := store.InsertIfNew(s.ctx, newsItem("item-1", "sector", "fp-1", now), 24*time.Hour)
	s.NoError(err)
	s.True(inserted)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM news_items WHERE id = $1", "item-1")
	s.NoError(err)
	s.Equal(1, count)

	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM citations WHERE news_id = $1", "item-1")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestNewsStore_InsertIfNew_DuplicateInWindow() {
	store := NewNewsStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	inserted, err := store.InsertIfNew(s.ctx, newsItem("item-1", "sector", "fp-1", now), 24*time.Hour)
	s.NoError(err)
	s.True(inserted)

	inserted, err = store.InsertIfNew(s.ctx, newsItem("item-2", "sector", "fp-1", now), 24*time.Hour)
	s.NoError(err)
	s.False(inserted)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM news_items")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestNewsStore_InsertIfNew_OutsideWindow() {
	store := NewNewsStore(s.db)
	now := time.Now().Truncate(time.Microsecond)
	old := now.Add(-48 * time.Hour)

	inserted, err := store.InsertIfNew(s.ctx, newsItem("item-1", "sector", "fp-1", old), 24*time.Hour)
	s.NoError(err)
	s.True(inserted)

	// Same fingerprint is insertable again once the window has passed.
	inserted, err = store.InsertIfNew(s.ctx, newsItem("item-2", "sector", "fp-1", now), 24*time.Hour)
	s.NoError(err)
	s.True(inserted)
}

func (s *PostgresIntegrationSuite) TestNewsStore_InsertIfNew_DifferentCategories() {
	store := NewNewsStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	inserted, err := store.InsertIfNew(s.ctx, newsItem("item-1", "sector", "fp-1", now), 24*time.Hour)
	s.NoError(err)
	s.True(inserted)

	inserted, err = store.InsertIfNew(s.ctx, newsItem("item-2", "market", "fp-1", now), 24*time.Hour)
	s.NoError(err)
	s.True(inserted)
}

func (s *PostgresIntegrationSuite) TestNewsStore_InsertIfNew_ConcurrentSameFingerprint() {
	store := NewNewsStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	const workers = 8
	results := make([]bool, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := newsItem("item-"+string(rune('a'+i)), "sector", "fp-race", now)
			inserted, err := store.InsertIfNew(s.ctx, item, 24*time.Hour)
			s.NoError(err)
			results[i] = inserted
		}(i)
	}
	wg.Wait()

	insertedCount := 0
	for _, ok := range results {
		if ok {
			insertedCount++
		}
	}
	s.Equal(1, insertedCount, "exactly one concurrent insert must win")

	var count int
	err := s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM news_items WHERE fingerprint = $1", "fp-race")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestNewsStore_ListByCategory() {
	store := NewNewsStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	for i, id := range []string{"item-1", "item-2", "item-3"} {
		item := newsItem(id, "sector", "fp-"+id, now.Add(time.Duration(i)*time.Minute))
		_, err := store.InsertIfNew(s.ctx, item, 24*time.Hour)
		s.NoError(err)
	}

	items, err := store.ListByCategory(s.ctx, "sector", 2)
	s.NoError(err)
	s.Require().Len(items, 2)

	s.Equal("item-3", items[0].ID, "newest first")
	s.Equal("item-2", items[1].ID)
	s.Require().Len(items[0].Citations, 1)
	s.Equal("https://www.moneycontrol.com/news/x", items[0].Citations[0].URL)
	s.Equal([]string{"HDFCBANK"}, []string(items[0].Symbols))
}

func (s *PostgresIntegrationSuite) TestNewsStore_ListBySymbol() {
	store := NewNewsStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	withSymbol := newsItem("item-1", "sector", "fp-1", now)
	_, err := store.InsertIfNew(s.ctx, withSymbol, 24*time.Hour)
	s.NoError(err)

	without := newsItem("item-2", "market", "fp-2", now)
	without.Symbols = nil
	_, err = store.InsertIfNew(s.ctx, without, 24*time.Hour)
	s.NoError(err)

	items, err := store.ListBySymbol(s.ctx, "HDFCBANK", 10)
	s.NoError(err)
	s.Require().Len(items, 1)
	s.Equal("item-1", items[0].ID)
}

func (s *PostgresIntegrationSuite) TestRunStore_CreateAndFinalize() {
	store := NewRunStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	run := &domain.IngestionRun{
		ID:          "run-1",
		TriggerName: "pre_market",
		TriggeredBy: "scheduler",
		StartedAt:   now,
		Status:      domain.RunPending,
	}
	s.NoError(store.Create(s.ctx, run))

	run.Status = domain.RunRunning
	s.NoError(store.MarkRunning(s.ctx, run))

	var status string
	s.NoError(s.db.GetContext(s.ctx, &status, "SELECT status FROM ingestion_runs WHERE id = $1", run.ID))
	s.Equal("running", status)

	run.Outcomes = []domain.CategoryOutcome{
		{JobName: "sector_banking", Category: "sector", Subcategory: "banking", Succeeded: true, ItemsAdded: 2, Attempts: 1, Duration: 1200 * time.Millisecond},
		{JobName: "sector_it", Category: "sector", Subcategory: "it", FailureKind: domain.FailureTimeout, Error: "deadline exceeded", Attempts: 3, Duration: 8 * time.Second},
	}
	run.Finalize(now.Add(time.Minute))
	s.NoError(store.Finalize(s.ctx, run))

	runs, err := store.ListRecent(s.ctx, 10)
	s.NoError(err)
	s.Require().Len(runs, 1)

	got := runs[0]
	s.Equal("run-1", got.ID)
	s.Equal(domain.RunPartiallyFailed, got.Status)
	s.Require().Len(got.Outcomes, 2)
	s.Equal("sector_banking", got.Outcomes[0].JobName)
	s.Equal(2, got.Outcomes[0].ItemsAdded)
	s.Equal(domain.FailureTimeout, got.Outcomes[1].FailureKind)
	s.Equal(8*time.Second, got.Outcomes[1].Duration)
}

func (s *PostgresIntegrationSuite) TestSettingsStore_DefaultsWhenEmpty() {
	store := NewSettingsStore(s.db)

	cfg, err := store.Load(s.ctx)
	s.NoError(err)

	s.Empty(cfg.APIKey)
	s.Equal("gemini-2.5-flash", cfg.Model)
	s.Equal(3, cfg.MaxConcurrent)
	s.Equal(60*time.Second, cfg.RequestTimeout)
	s.Equal(24*time.Hour, cfg.DedupWindow)
}

func (s *PostgresIntegrationSuite) TestSettingsStore_SaveAndLoad() {
	store := NewSettingsStore(s.db)

	cfg := domain.Settings{
		APIKey:            "AIzaSy-test-key-0123456789",
		Model:             "gemini-2.5-pro",
		MaxConcurrent:     5,
		RequestsPerMinute: 20,
		RequestTimeout:    90 * time.Second,
		MaxAttempts:       4,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		DedupWindow:       48 * time.Hour,
		PreferredSources:  []string{"moneycontrol.com", "livemint.com"},
	}
	s.NoError(store.Save(s.ctx, cfg))

	loaded, err := store.Load(s.ctx)
	s.NoError(err)
	s.Equal(cfg, loaded)
}

func (s *PostgresIntegrationSuite) TestSettingsStore_SaveOverwrites() {
	store := NewSettingsStore(s.db)

	cfg := domain.Settings{
		APIKey:            "AIzaSy-test-key-0123456789",
		Model:             "gemini-2.5-flash",
		MaxConcurrent:     3,
		RequestsPerMinute: 10,
		RequestTimeout:    60 * time.Second,
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        60 * time.Second,
		DedupWindow:       24 * time.Hour,
	}
	s.NoError(store.Save(s.ctx, cfg))

	cfg.MaxConcurrent = 8
	s.NoError(store.Save(s.ctx, cfg))

	loaded, err := store.Load(s.ctx)
	s.NoError(err)
	s.Equal(8, loaded.MaxConcurrent)
}

func (s *PostgresIntegrationSuite) TestScheduleStore_SeededJobs() {
	store := NewScheduleStore(s.db)

	jobs, err := store.ListEnabled(s.ctx)
	s.NoError(err)
	s.Len(jobs, 8)

	triggers, err := store.ListEnabledTriggers(s.ctx)
	s.NoError(err)
	s.Len(triggers, 3)
}

func (s *PostgresIntegrationSuite) TestScheduleStore_SetEnabled() {
	store := NewScheduleStore(s.db)

	s.NoError(store.SetEnabled(s.ctx, "sector_banking", false))

	jobs, err := store.ListEnabled(s.ctx)
	s.NoError(err)
	for _, j := range jobs {
		s.NotEqual("sector_banking", j.Name)
	}

	all, err := store.List(s.ctx)
	s.NoError(err)
	s.Len(all, 8)

	s.NoError(store.SetEnabled(s.ctx, "sector_banking", true))
}

func (s *PostgresIntegrationSuite) TestSymbolStore_ActiveSymbols() {
	store := NewSymbolStore(s.db)

	symbols, err := store.ActiveSymbols(s.ctx)
	s.NoError(err)
	s.Len(symbols, 16)

	_, err = s.db.ExecContext(s.ctx, "UPDATE stock_symbols SET is_active = false WHERE symbol = $1", "WIPRO")
	s.NoError(err)

	symbols, err = store.ActiveSymbols(s.ctx)
	s.NoError(err)
	s.Len(symbols, 15)

	_, err = s.db.ExecContext(s.ctx, "UPDATE stock_symbols SET is_active = true WHERE symbol = $1", "WIPRO")
	s.NoError(err)
}
