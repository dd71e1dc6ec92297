package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"finsights/internal/domain"
)

type NewsStore struct {
	db *sqlx.DB
}

func NewNewsStore(db *sqlx.DB) *NewsStore {
	return &NewsStore{db: db}
}

type newsRow struct {
	ID                   string         `db:"id"`
	Category             string         `db:"category"`
	Subcategory          string         `db:"subcategory"`
	Symbols              pq.StringArray `db:"symbols"`
	Title                string         `db:"title"`
	Summary              string         `db:"summary"`
	Content              string         `db:"content"`
	NewsType             string         `db:"news_type"`
	SentimentScore       int            `db:"sentiment_score"`
	SentimentExplanation string         `db:"sentiment_explanation"`
	FetchedAt            time.Time      `db:"fetched_at"`
	Fingerprint          string         `db:"fingerprint"`
}

// InsertIfNew stores the item unless an item with the same category and
// fingerprint already exists inside the dedup window. The check and
// insert run in one transaction holding a per-category advisory lock,
// so concurrent fetches of the same category cannot both insert the
// same story.
func (s *NewsStore) InsertIfNew(ctx context.Context, item *domain.NewsItem, window time.Duration) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", item.Category); err != nil {
		return false, fmt.Errorf("acquire category lock: %w", err)
	}

	var exists bool
	err = tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM news_items
			WHERE category = $1 AND fingerprint = $2 AND fetched_at >= $3
		)`,
		item.Category, item.Fingerprint, item.FetchedAt.Add(-window),
	)
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}
	if exists {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO news_items (
			id, category, subcategory, symbols, title, summary, content,
			news_type, sentiment_score, sentiment_explanation, fetched_at, fingerprint
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID,
		item.Category,
		item.Subcategory,
		pq.StringArray(item.Symbols),
		item.Title,
		item.Summary,
		item.Content,
		item.NewsType,
		item.SentimentScore,
		item.SentimentExplanation,
		item.FetchedAt,
		item.Fingerprint,
	)
	if err != nil {
		return false, fmt.Errorf("insert news item: %w", err)
	}

	for _, c := range item.Citations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO citations (news_id, citation_index, url, title)
			VALUES ($1, $2, $3, $4)`,
			item.ID, c.Index, c.URL, c.Title,
		)
		if err != nil {
			return false, fmt.Errorf("insert citation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ListByCategory returns the latest items for one category, newest
// first, citations included.
func (s *NewsStore) ListByCategory(ctx context.Context, category string, limit int) ([]domain.NewsItem, error) {
	var rows []newsRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, category, subcategory, symbols, title, summary, content,
		       news_type, sentiment_score, sentiment_explanation, fetched_at, fingerprint
		FROM news_items
		WHERE category = $1
		ORDER BY fetched_at DESC
		LIMIT $2`,
		category, limit,
	)
	if err != nil {
		return nil, err
	}
	return s.attachCitations(ctx, rows)
}

// ListBySymbol returns the latest items mentioning one stock symbol.
func (s *NewsStore) ListBySymbol(ctx context.Context, symbol string, limit int) ([]domain.NewsItem, error) {
	var rows []newsRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, category, subcategory, symbols, title, summary, content,
		       news_type, sentiment_score, sentiment_explanation, fetched_at, fingerprint
		FROM news_items
		WHERE $1 = ANY(symbols)
		ORDER BY fetched_at DESC
		LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, err
	}
	return s.attachCitations(ctx, rows)
}

func (s *NewsStore) attachCitations(ctx context.Context, rows []newsRow) ([]domain.NewsItem, error) {
	items := make([]domain.NewsItem, 0, len(rows))
	if len(rows) == 0 {
		return items, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	type citationRow struct {
		NewsID string `db:"news_id"`
		Index  int    `db:"citation_index"`
		URL    string `db:"url"`
		Title  string `db:"title"`
	}
	var citations []citationRow
	err := s.db.SelectContext(ctx, &citations, `
		SELECT news_id, citation_index, url, title
		FROM citations
		WHERE news_id = ANY($1)
		ORDER BY citation_index`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}

	byItem := make(map[string][]domain.Citation)
	for _, c := range citations {
		byItem[c.NewsID] = append(byItem[c.NewsID], domain.Citation{
			Index: c.Index,
			URL:   c.URL,
			Title: c.Title,
		})
	}

	for _, r := range rows {
		items = append(items, domain.NewsItem{
			ID:                   r.ID,
			Category:             r.Category,
			Subcategory:          r.Subcategory,
			Symbols:              r.Symbols,
			Title:                r.Title,
			Summary:              r.Summary,
			Content:              r.Content,
			NewsType:             r.NewsType,
			SentimentScore:       r.SentimentScore,
			SentimentExplanation: r.SentimentExplanation,
			Citations:            byItem[r.ID],
			FetchedAt:            r.FetchedAt,
			Fingerprint:          r.Fingerprint,
		})
	}
	return items, nil
}
