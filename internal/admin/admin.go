// Package admin implements operator-facing job inspection and
// intervention: status projection, DLQ re-drive, and DLQ listing.
package admin

import (
	"context"
	"fmt"
	"time"

	"batchexport/internal/models"
	"batchexport/internal/store"
)

// Store is the subset used by the admin surface. The admin surface only
// ever sees job_key (the client-visible identifier returned by
// Submission); JobIDForKey resolves it to the internal job_id every
// other Store method expects.
type Store interface {
	JobIDForKey(ctx context.Context, jobKey string) (string, error)
	JobDetail(ctx context.Context, jobID string) (models.Job, []models.Unit, error)
	JobCounts(ctx context.Context, jobID string) (models.JobCounts, error)
	ResetUnitForRedrive(ctx context.Context, inputID string) error
	CancelJob(ctx context.Context, jobID, errorMessage string, now time.Time) error
	ListDLQUnits(ctx context.Context, limit int) ([]models.Unit, error)
}

// UnitView is the per-unit projection returned to the caller; s3Path is
// only populated once the unit reaches SUCCEEDED.
type UnitView struct {
	InputID       string  `json:"inputId"`
	IndexKey      string  `json:"indexKey"`
	EffectiveDate int     `json:"effectiveDate"`
	AsofIndicator string  `json:"asofIndicator"`
	Status        string  `json:"status"`
	AttemptCount  int     `json:"attemptCount"`
	S3Path        *string `json:"s3Path,omitempty"`
	IsReused      bool    `json:"isReused"`
	ErrorMessage  *string `json:"errorMessage,omitempty"`
}

// JobStatus is the full status projection for GET /jobs/{jobId}.
type JobStatus struct {
	JobID       string           `json:"-"`
	JobKey      string           `json:"jobId"`
	Status      string           `json:"status"`
	Counts      models.JobCounts `json:"counts"`
	Units       []UnitView       `json:"units"`
	RequestedAt time.Time        `json:"requestedAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// ErrNotFound is returned when the requested job does not exist.
var ErrNotFound = store.ErrJobNotFound

// Admin exposes status, re-drive, and cancellation operations.
type Admin struct {
	store Store
}

// New builds an Admin surface over the given store.
func New(s Store) *Admin {
	return &Admin{store: s}
}

// JobStatus returns the aggregate projection for a single job, looked up
// by its client-visible job_key.
func (a *Admin) JobStatus(ctx context.Context, jobKey string) (JobStatus, error) {
	jobID, err := a.store.JobIDForKey(ctx, jobKey)
	if err != nil {
		return JobStatus{}, err
	}
	job, units, err := a.store.JobDetail(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	counts, err := a.store.JobCounts(ctx, jobID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("job counts: %w", err)
	}

	views := make([]UnitView, 0, len(units))
	for _, u := range units {
		views = append(views, UnitView{
			InputID:       u.InputID,
			IndexKey:      u.IndexKey,
			EffectiveDate: u.EffectiveDate,
			AsofIndicator: u.AsofIndicator,
			Status:        u.Status,
			AttemptCount:  u.AttemptCount,
			S3Path:        u.S3Path,
			IsReused:      u.IsReused,
			ErrorMessage:  u.ErrorMessage,
		})
	}

	return JobStatus{
		JobID:       job.JobID,
		JobKey:      job.JobKey,
		Status:      job.Status,
		Counts:      counts,
		Units:       views,
		RequestedAt: job.RequestedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// Redrive resets a DLQ unit back to PENDING. The poller only selects
// units whose parent job is non-terminal, so a unit whose job is already
// FAILED or CANCELLED stays PENDING and is not executed again. Returns
// store.ErrUnitNotDLQ if the unit is not currently in DLQ.
func (a *Admin) Redrive(ctx context.Context, inputID string) error {
	return a.store.ResetUnitForRedrive(ctx, inputID)
}

// Cancel marks a job CANCELLED administratively, independent of its
// units' state. In-flight units are not interrupted: they run to
// completion or failure, and the Executor job guard then short-circuits
// any unit that is still claimed after cancellation.
// jobKey is the client-visible identifier returned by Submission.
func (a *Admin) Cancel(ctx context.Context, jobKey string, now time.Time) error {
	jobID, err := a.store.JobIDForKey(ctx, jobKey)
	if err != nil {
		return err
	}
	return a.store.CancelJob(ctx, jobID, "cancelled by operator", now)
}

// DLQEntry is one row of the DLQ listing.
type DLQEntry struct {
	InputID       string
	JobID         string
	IndexKey      string
	EffectiveDate int
	AsofIndicator string
	AttemptCount  int
	ErrorMessage  *string
}

// ListDLQ lists up to limit DLQ units across all jobs, in the store's
// input_id-descending order.
func (a *Admin) ListDLQ(ctx context.Context, limit int) ([]DLQEntry, error) {
	units, err := a.store.ListDLQUnits(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list dlq units: %w", err)
	}
	entries := make([]DLQEntry, 0, len(units))
	for _, u := range units {
		entries = append(entries, DLQEntry{
			InputID:       u.InputID,
			JobID:         u.JobID,
			IndexKey:      u.IndexKey,
			EffectiveDate: u.EffectiveDate,
			AsofIndicator: u.AsofIndicator,
			AttemptCount:  u.AttemptCount,
			ErrorMessage:  u.ErrorMessage,
		})
	}
	return entries, nil
}
