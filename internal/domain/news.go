package domain

import "time"

// NewsType distinguishes single market summaries from individual articles.
const (
	NewsTypeSummary = "summary"
	NewsTypeArticle = "article"
)

// NewsItem is one ingested summary or article. Items are immutable once
// stored; the fingerprint identifies duplicates within the dedup window.
type NewsItem struct {
	ID          string
	Category    string
	Subcategory string
	Symbols     []string
	Title       string
	Summary     string
	Content     string
	NewsType    string

	// SentimentScore ranges -10 (very negative) to +10 (very positive),
	// 0 when the provider gave none.
	SentimentScore       int
	SentimentExplanation string

	Citations   []Citation
	FetchedAt   time.Time
	Fingerprint string
}

// Citation is a grounding source attached to a news item.
type Citation struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// StockSymbol is reference data used for best-effort ticker matching.
type StockSymbol struct {
	ID          int64  `db:"id"`
	Symbol      string `db:"symbol"`
	CompanyName string `db:"company_name"`
	Sector      string `db:"sector"`
	IsActive    bool   `db:"is_active"`
}
