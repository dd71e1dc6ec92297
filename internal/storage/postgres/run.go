package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"finsights/internal/domain"
)

type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, run *domain.IngestionRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (id, trigger_name, triggered_by, started_at, status)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.TriggerName, run.TriggeredBy, run.StartedAt, string(run.Status),
	)
	return err
}

// MarkRunning records the pending -> running transition so in-flight
// runs show correctly in the history view.
func (s *RunStore) MarkRunning(ctx context.Context, run *domain.IngestionRun) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE ingestion_runs SET status = $2 WHERE id = $1",
		run.ID, string(run.Status),
	)
	return err
}

// Finalize writes the terminal status and per-category outcomes in one
// transaction.
func (s *RunStore) Finalize(ctx context.Context, run *domain.IngestionRun) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE ingestion_runs
		SET finished_at = $2, status = $3, items_added = $4
		WHERE id = $1`,
		run.ID, run.FinishedAt, string(run.Status), run.ItemsAdded(),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	for _, o := range run.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO category_outcomes (
				run_id, job_name, category, subcategory, succeeded,
				failure_kind, error_message, items_added, duplicates, attempts, duration_ms
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			run.ID, o.JobName, o.Category, o.Subcategory, o.Succeeded,
			string(o.FailureKind), o.Error, o.ItemsAdded, o.Duplicates, o.Attempts,
			o.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert outcome for %s: %w", o.JobName, err)
		}
	}

	return tx.Commit()
}

type runRow struct {
	ID          string     `db:"id"`
	TriggerName string     `db:"trigger_name"`
	TriggeredBy string     `db:"triggered_by"`
	StartedAt   time.Time  `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
	Status      string     `db:"status"`
	ItemsAdded  int        `db:"items_added"`
}

type outcomeRow struct {
	RunID       string `db:"run_id"`
	JobName     string `db:"job_name"`
	Category    string `db:"category"`
	Subcategory string `db:"subcategory"`
	Succeeded   bool   `db:"succeeded"`
	FailureKind string `db:"failure_kind"`
	Error       string `db:"error_message"`
	ItemsAdded  int    `db:"items_added"`
	Duplicates  int    `db:"duplicates"`
	Attempts    int    `db:"attempts"`
	DurationMS  int64  `db:"duration_ms"`
}

// ListRecent returns recent runs with their outcomes, newest first, for
// the admin panel's run history view.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]domain.IngestionRun, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, trigger_name, triggered_by, started_at, finished_at, status, items_added
		FROM ingestion_runs
		ORDER BY started_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}

	runs := make([]domain.IngestionRun, 0, len(rows))
	for _, r := range rows {
		var outcomes []outcomeRow
		err := s.db.SelectContext(ctx, &outcomes, `
			SELECT run_id, job_name, category, subcategory, succeeded,
			       failure_kind, error_message, items_added, duplicates, attempts, duration_ms
			FROM category_outcomes
			WHERE run_id = $1
			ORDER BY job_name`,
			r.ID,
		)
		if err != nil {
			return nil, err
		}

		run := domain.IngestionRun{
			ID:          r.ID,
			TriggerName: r.TriggerName,
			TriggeredBy: r.TriggeredBy,
			StartedAt:   r.StartedAt,
			FinishedAt:  r.FinishedAt,
			Status:      domain.RunStatus(r.Status),
		}
		for _, o := range outcomes {
			run.Outcomes = append(run.Outcomes, domain.CategoryOutcome{
				JobName:     o.JobName,
				Category:    o.Category,
				Subcategory: o.Subcategory,
				Succeeded:   o.Succeeded,
				FailureKind: domain.FailureKind(o.FailureKind),
				Error:       o.Error,
				ItemsAdded:  o.ItemsAdded,
				Duplicates:  o.Duplicates,
				Attempts:    o.Attempts,
				Duration:    time.Duration(o.DurationMS) * time.Millisecond,
			})
		}
		runs = append(runs, run)
	}
	return runs, nil
}
