package domain

import "time"

// RunStatus is the lifecycle state of an ingestion run:
// pending -> running -> completed | partially_failed | failed.
type RunStatus string

const (
	RunPending         RunStatus = "pending"
	RunRunning         RunStatus = "running"
	RunCompleted       RunStatus = "completed"
	RunPartiallyFailed RunStatus = "partially_failed"
	RunFailed          RunStatus = "failed"
)

// CategoryOutcome records how one category job resolved within a run.
// Duplicates count as success.
type CategoryOutcome struct {
	JobName     string
	Category    string
	Subcategory string
	Succeeded   bool
	FailureKind FailureKind
	Error       string
	ItemsAdded  int
	Duplicates  int
	Attempts    int
	Duration    time.Duration
}

// IngestionRun is one scheduler- or admin-triggered execution across
// all enabled category jobs.
type IngestionRun struct {
	ID          string
	TriggerName string
	TriggeredBy string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      RunStatus
	Outcomes    []CategoryOutcome
}

// ItemsAdded sums new items across all outcomes.
func (r *IngestionRun) ItemsAdded() int {
	total := 0
	for _, o := range r.Outcomes {
		total += o.ItemsAdded
	}
	return total
}

// Finalize computes the terminal status from the recorded outcomes and
// stamps the finish time. A run with no outcomes at all is failed.
func (r *IngestionRun) Finalize(now time.Time) {
	r.FinishedAt = &now

	succeeded, failed := 0, 0
	for _, o := range r.Outcomes {
		if o.Succeeded {
			succeeded++
		} else {
			failed++
		}
	}

	switch {
	case succeeded > 0 && failed == 0:
		r.Status = RunCompleted
	case succeeded > 0 && failed > 0:
		r.Status = RunPartiallyFailed
	default:
		r.Status = RunFailed
	}
}
