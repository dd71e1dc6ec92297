package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"finsights/internal/domain"
)

const (
	maxTitleLen   = 500
	maxSummaryLen = 500
	minTitleLen   = 10
)

// Parser turns raw grounded provider output into candidate news items.
// It tolerates missing sentiment and citations; it fails with a
// malformed-response error only when no headline or body is extractable
// at all.
type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// payload covers both response shapes the prompts ask for: a sector
// news object with an "articles" array, and a single market summary.
type payload struct {
	Articles []rawArticle `json:"articles"`

	Title                string      `json:"title"`
	Overview             string      `json:"overview"`
	KeyPoints            []string    `json:"key_points"`
	Sectors              []rawSector `json:"sectors"`
	MarketSentiment      string      `json:"market_sentiment"`
	Indices              []rawIndex  `json:"indices"`
	SentimentScore       *int        `json:"sentiment_score"`
	SentimentExplanation string      `json:"sentiment_explanation"`
}

type rawArticle struct {
	Title                string   `json:"title"`
	Summary              string   `json:"summary"`
	Content              string   `json:"content"`
	StocksMentioned      []string `json:"stocks_mentioned"`
	Impact               string   `json:"impact"`
	SentimentScore       *int     `json:"sentiment_score"`
	SentimentExplanation string   `json:"sentiment_explanation"`
}

type rawSector struct {
	Name        string `json:"name"`
	Performance string `json:"performance"`
	Reason      string `json:"reason"`
}

type rawIndex struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Change string `json:"change"`
}

// Parse extracts candidate items from one provider response. Grounding
// citations apply to every item from the response. The symbols set maps
// known tickers (uppercase) for best-effort mention matching.
func (p *Parser) Parse(job domain.CategoryJob, resp *domain.ProviderResponse, symbols map[string]struct{}, now time.Time) ([]domain.NewsItem, error) {
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, domain.NewFetchError(domain.FailureMalformed, fmt.Errorf("empty response for job %s", job.Name))
	}

	doc, ok := extractJSON(resp.Text)
	if !ok {
		// Grounded responses sometimes come back as prose despite the
		// JSON instruction. Salvage a single summary item from the text.
		return p.parsePlainText(job, resp, symbols, now)
	}

	if len(doc.Articles) > 0 {
		items := p.parseArticles(job, doc.Articles, resp.Citations, symbols, now)
		if len(items) == 0 {
			return nil, domain.NewFetchError(domain.FailureMalformed,
				fmt.Errorf("no usable articles in response for job %s: %s", job.Name, snippet(resp.Text)))
		}
		return items, nil
	}

	if doc.Title != "" || doc.Overview != "" {
		item := p.summaryItem(job, doc, resp.Citations, now)
		return []domain.NewsItem{item}, nil
	}

	return nil, domain.NewFetchError(domain.FailureMalformed,
		fmt.Errorf("no extractable articles in response for job %s: %s", job.Name, snippet(resp.Text)))
}

func (p *Parser) parseArticles(job domain.CategoryJob, articles []rawArticle, citations []domain.Citation, symbols map[string]struct{}, now time.Time) []domain.NewsItem {
	maxArticles := job.MaxArticles
	if maxArticles <= 0 {
		maxArticles = 5
	}

	items := make([]domain.NewsItem, 0, len(articles))
	for _, a := range articles {
		if len(items) >= maxArticles {
			break
		}

		title := stripMarkup(a.Title)
		if len(title) < minTitleLen {
			p.logger.Debug("skipping article with unusable title", "job", job.Name, "title", a.Title)
			continue
		}

		summary := stripMarkup(a.Summary)
		if summary == "" {
			summary = stripMarkup(a.Content)
		}
		if summary == "" {
			continue
		}

		items = append(items, domain.NewsItem{
			Category:             job.Category,
			Subcategory:          job.Subcategory,
			Symbols:              matchSymbols(a.StocksMentioned, title, symbols),
			Title:                truncate(title, maxTitleLen),
			Summary:              truncate(summary, maxSummaryLen),
			Content:              a.Content,
			NewsType:             domain.NewsTypeArticle,
			SentimentScore:       sentimentScore(a.SentimentScore, a.Impact),
			SentimentExplanation: a.SentimentExplanation,
			Citations:            citations,
			FetchedAt:            now,
		})
	}
	return items
}

func (p *Parser) summaryItem(job domain.CategoryJob, doc *payload, citations []domain.Citation, now time.Time) domain.NewsItem {
	title := stripMarkup(doc.Title)
	if len(title) < minTitleLen {
		title = generatedTitle(job.Subcategory, now)
	}

	content := formatSummary(doc)

	score := 0
	if doc.SentimentScore != nil {
		score = clampScore(*doc.SentimentScore)
	}

	return domain.NewsItem{
		Category:             job.Category,
		Subcategory:          job.Subcategory,
		Title:                truncate(title, maxTitleLen),
		Summary:              truncate(stripMarkup(content), maxSummaryLen),
		Content:              content,
		NewsType:             domain.NewsTypeSummary,
		SentimentScore:       score,
		SentimentExplanation: doc.SentimentExplanation,
		Citations:            citations,
		FetchedAt:            now,
	}
}

// parsePlainText builds one neutral-sentiment summary item from a prose
// response that carried no JSON.
func (p *Parser) parsePlainText(job domain.CategoryJob, resp *domain.ProviderResponse, symbols map[string]struct{}, now time.Time) ([]domain.NewsItem, error) {
	text := stripMarkup(resp.Text)
	if len(text) < minTitleLen {
		return nil, domain.NewFetchError(domain.FailureMalformed,
			fmt.Errorf("no extractable headline or body for job %s: %s", job.Name, snippet(resp.Text)))
	}

	title := firstSentence(text)
	if len(title) < minTitleLen {
		title = generatedTitle(job.Subcategory, now)
	}

	p.logger.Debug("provider returned prose instead of JSON", "job", job.Name)

	return []domain.NewsItem{{
		Category:    job.Category,
		Subcategory: job.Subcategory,
		Symbols:     matchSymbols(nil, text, symbols),
		Title:       truncate(title, maxTitleLen),
		Summary:     truncate(text, maxSummaryLen),
		Content:     resp.Text,
		NewsType:    domain.NewsTypeSummary,
		Citations:   resp.Citations,
		FetchedAt:   now,
	}}, nil
}

// extractJSON finds the outermost JSON object in the text, tolerating
// markdown fences and surrounding prose.
func extractJSON(text string) (*payload, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var doc payload
	if err := json.Unmarshal([]byte(text[start:end+1]), &doc); err != nil {
		return nil, false
	}
	return &doc, true
}

// formatSummary renders the structured market summary as markdown,
// matching the shape the web layer renders.
func formatSummary(doc *payload) string {
	var parts []string

	if doc.Overview != "" {
		parts = append(parts, "## Overview\n\n"+doc.Overview)
	}

	if len(doc.Indices) > 0 {
		var sb strings.Builder
		sb.WriteString("## Market Indices\n")
		for _, idx := range doc.Indices {
			if idx.Name == "" {
				continue
			}
			fmt.Fprintf(&sb, "\n- **%s**: %s (%s)", idx.Name, idx.Value, idx.Change)
		}
		parts = append(parts, sb.String())
	}

	if len(doc.KeyPoints) > 0 {
		var sb strings.Builder
		sb.WriteString("## Key Points\n")
		for _, point := range doc.KeyPoints {
			sb.WriteString("\n- " + point)
		}
		parts = append(parts, sb.String())
	}

	if len(doc.Sectors) > 0 {
		var sb strings.Builder
		sb.WriteString("## Sector Performance\n")
		for _, s := range doc.Sectors {
			if s.Name == "" {
				continue
			}
			fmt.Fprintf(&sb, "\n- **%s**: %s", s.Name, s.Performance)
			if s.Reason != "" {
				sb.WriteString(" - " + s.Reason)
			}
		}
		parts = append(parts, sb.String())
	}

	if doc.MarketSentiment != "" {
		parts = append(parts, "## Market Sentiment\n\n**"+capitalize(doc.MarketSentiment)+"**")
	}

	return strings.Join(parts, "\n\n")
}

// matchSymbols intersects provider-mentioned tickers and uppercase
// tokens from the text with the known symbol set. Unknown mentions are
// dropped, never invented.
func matchSymbols(mentioned []string, text string, symbols map[string]struct{}) []string {
	if len(symbols) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var matched []string

	add := func(candidate string) {
		sym := strings.ToUpper(strings.TrimSpace(candidate))
		if _, known := symbols[sym]; !known {
			return
		}
		if _, dup := seen[sym]; dup {
			return
		}
		seen[sym] = struct{}{}
		matched = append(matched, sym)
	}

	for _, m := range mentioned {
		add(m)
	}

	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, ".,;:()[]'\"")
		if len(token) >= 2 && token == strings.ToUpper(token) {
			add(token)
		}
	}

	return matched
}

func sentimentScore(score *int, impact string) int {
	if score != nil {
		return clampScore(*score)
	}
	switch impact {
	case "positive":
		return 3
	case "negative":
		return -3
	default:
		return 0
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clampScore(score int) int {
	if score > 10 {
		return 10
	}
	if score < -10 {
		return -10
	}
	return score
}

func generatedTitle(subcategory string, now time.Time) string {
	date := now.Format("02 Jan 2006")
	titles := map[string]string{
		"pre_market":  "Pre-Market Analysis",
		"morning":     "Morning Market Update",
		"midday":      "Mid-Day Market Summary",
		"post_market": "Post-Market Summary",
		"evening":     "Evening Market Wrap",
	}
	if title, ok := titles[subcategory]; ok {
		return title + " - " + date
	}
	return "Market Update - " + date
}

func firstSentence(text string) string {
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.Index(text, sep); idx > 0 {
			return text[:idx+1]
		}
	}
	return truncate(text, 120)
}

// truncate cuts at a rune boundary so multi-byte text (rupee signs,
// Devanagari) never becomes invalid UTF-8, which Postgres rejects.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return truncate(s, 200)
}
