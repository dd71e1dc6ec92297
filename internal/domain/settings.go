package domain

import "time"

// Settings holds the admin-mutable configuration read by every run.
// Mutated only through the settings service; runs see snapshot copies.
type Settings struct {
	APIKey string `validate:"required,min=20"`
	Model  string `validate:"required"`

	MaxConcurrent     int           `validate:"min=1,max=16"`
	RequestsPerMinute int           `validate:"min=1,max=120"`
	RequestTimeout    time.Duration `validate:"min=1s,max=5m"`

	MaxAttempts    int           `validate:"min=1,max=5"`
	InitialBackoff time.Duration `validate:"min=100ms"`
	MaxBackoff     time.Duration `validate:"min=1s"`

	DedupWindow time.Duration `validate:"min=1h"`

	// PreferredSources are trusted news domains hinted to the provider.
	PreferredSources []string
}

// CategoryJob describes one configured news query (category + prompt).
type CategoryJob struct {
	ID          int64  `db:"id"`
	Name        string `db:"job_name"`
	Category    string `db:"category"`
	Subcategory string `db:"subcategory"`
	Query       string `db:"query_template"`
	MaxArticles int    `db:"max_articles"`
	Enabled     bool   `db:"is_enabled"`
}

// Trigger names a scheduled occasion (pre-market, post-market, refresh)
// that starts a full ingestion run.
type Trigger struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	CronSpec string `db:"cron_spec"`
	Enabled  bool   `db:"is_enabled"`
}

// Snapshot is the immutable view of settings plus enabled jobs that a
// run works from; mid-run settings updates are not observed.
type Snapshot struct {
	Settings
	Jobs []CategoryJob
}

// SummaryRequest is one grounded summarization request to the provider.
type SummaryRequest struct {
	JobName          string
	Query            string
	MaxArticles      int
	PreferredSources []string
}

// ProviderResponse is the raw grounded output prior to parsing.
type ProviderResponse struct {
	Text      string
	Citations []Citation
}
