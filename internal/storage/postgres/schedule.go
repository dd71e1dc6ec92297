package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"finsights/internal/domain"
)

// ScheduleStore holds the category job and trigger configuration the
// admin panel edits and the scheduler/orchestrator read.
type ScheduleStore struct {
	db *sqlx.DB
}

func NewScheduleStore(db *sqlx.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) ListEnabled(ctx context.Context) ([]domain.CategoryJob, error) {
	var jobs []domain.CategoryJob
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT id, job_name, category, subcategory, query_template, max_articles, is_enabled
		FROM category_jobs
		WHERE is_enabled
		ORDER BY job_name`)
	return jobs, err
}

func (s *ScheduleStore) List(ctx context.Context) ([]domain.CategoryJob, error) {
	var jobs []domain.CategoryJob
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT id, job_name, category, subcategory, query_template, max_articles, is_enabled
		FROM category_jobs
		ORDER BY job_name`)
	return jobs, err
}

func (s *ScheduleStore) SetEnabled(ctx context.Context, jobName string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE category_jobs SET is_enabled = $2 WHERE job_name = $1",
		jobName, enabled,
	)
	return err
}

func (s *ScheduleStore) ListEnabledTriggers(ctx context.Context) ([]domain.Trigger, error) {
	var triggers []domain.Trigger
	err := s.db.SelectContext(ctx, &triggers, `
		SELECT id, name, cron_spec, is_enabled
		FROM triggers
		WHERE is_enabled
		ORDER BY name`)
	return triggers, err
}
