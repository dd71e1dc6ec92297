package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"finsights/internal/domain"
)

// Settings keys as stored in the settings table.
const (
	keyAPIKey            = "gemini_api_key"
	keyModel             = "model"
	keyMaxConcurrent     = "max_concurrent"
	keyRequestsPerMinute = "requests_per_minute"
	keyRequestTimeout    = "request_timeout"
	keyMaxAttempts       = "max_attempts"
	keyInitialBackoff    = "initial_backoff"
	keyMaxBackoff        = "max_backoff"
	keyDedupWindow       = "dedup_window"
	keyPreferredSources  = "preferred_sources"
)

type SettingsStore struct {
	db *sqlx.DB
}

func NewSettingsStore(db *sqlx.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Load reads all settings rows and applies defaults for missing keys.
func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, error) {
	type row struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, "SELECT key, value FROM settings"); err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}

	cfg := domain.Settings{
		APIKey:            values[keyAPIKey],
		Model:             stringOr(values[keyModel], "gemini-2.5-flash"),
		MaxConcurrent:     intOr(values[keyMaxConcurrent], 3),
		RequestsPerMinute: intOr(values[keyRequestsPerMinute], 10),
		RequestTimeout:    durationOr(values[keyRequestTimeout], 60*time.Second),
		MaxAttempts:       intOr(values[keyMaxAttempts], 3),
		InitialBackoff:    durationOr(values[keyInitialBackoff], 2*time.Second),
		MaxBackoff:        durationOr(values[keyMaxBackoff], 60*time.Second),
		DedupWindow:       durationOr(values[keyDedupWindow], 24*time.Hour),
	}
	if raw := values[keyPreferredSources]; raw != "" {
		for _, src := range strings.Split(raw, ",") {
			if src = strings.TrimSpace(src); src != "" {
				cfg.PreferredSources = append(cfg.PreferredSources, src)
			}
		}
	}
	return cfg, nil
}

// Save upserts the whole settings record in one transaction so readers
// never observe a partial update.
func (s *SettingsStore) Save(ctx context.Context, cfg domain.Settings) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	values := map[string]string{
		keyAPIKey:            cfg.APIKey,
		keyModel:             cfg.Model,
		keyMaxConcurrent:     strconv.Itoa(cfg.MaxConcurrent),
		keyRequestsPerMinute: strconv.Itoa(cfg.RequestsPerMinute),
		keyRequestTimeout:    cfg.RequestTimeout.String(),
		keyMaxAttempts:       strconv.Itoa(cfg.MaxAttempts),
		keyInitialBackoff:    cfg.InitialBackoff.String(),
		keyMaxBackoff:        cfg.MaxBackoff.String(),
		keyDedupWindow:       cfg.DedupWindow.String(),
		keyPreferredSources:  strings.Join(cfg.PreferredSources, ","),
	}

	for key, value := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intOr(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func durationOr(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
