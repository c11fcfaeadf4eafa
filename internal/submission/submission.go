// Package submission validates a client batch-export request and writes
// the job and its units in one atomic transaction.
package submission

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"batchexport/internal/clock"
	"batchexport/internal/models"
	"batchexport/internal/store"
)

// Item is one requested export within a submission.
type Item struct {
	IndexKey      string
	EffectiveDate int // yyyymmdd
	AsofIndicator string
}

// Request is the validated input to Submit.
type Request struct {
	Items []Item
}

// ValidationError reports a synchronous 4xx-class submission rejection;
// no state is written when this is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// JobKeyConflictError reports a 409-class rejection: the generated
// job_key already exists.
type JobKeyConflictError struct {
	JobKey string
}

func (e *JobKeyConflictError) Error() string {
	return fmt.Sprintf("job_key %q already exists", e.JobKey)
}

// Store is the subset used by Submission.
type Store interface {
	CreateJob(ctx context.Context, job models.Job, units []models.Unit, maxUnitsPerJob int) error
}

// Submission builds and inserts jobs from client requests.
type Submission struct {
	store          Store
	clock          clock.Clock
	maxUnitsPerJob int
	seq            uint64
}

// New builds a Submission.
func New(s Store, c clock.Clock, maxUnitsPerJob int) *Submission {
	return &Submission{store: s, clock: c, maxUnitsPerJob: maxUnitsPerJob}
}

// Submit validates the request, generates job_id/job_key, constructs all
// unit rows, and calls Store.CreateJob in one transaction. Returns the
// assigned job_key and its initial status.
func (s *Submission) Submit(ctx context.Context, req Request) (jobKey string, status string, err error) {
	if err := validate(req, s.maxUnitsPerJob); err != nil {
		return "", "", err
	}

	now := s.clock.Now()
	jobID := uuid.New().String()
	jobKey = s.nextJobKey(now)

	units := make([]models.Unit, 0, len(req.Items))
	for _, item := range req.Items {
		units = append(units, models.Unit{
			InputID:       uuid.New().String(),
			JobID:         jobID,
			IndexKey:      item.IndexKey,
			EffectiveDate: item.EffectiveDate,
			AsofIndicator: item.AsofIndicator,
			Status:        models.UnitPending,
		})
	}

	job := models.Job{
		JobID:       jobID,
		JobKey:      jobKey,
		Status:      models.JobSubmitted,
		TotalInputs: len(units),
		RequestedAt: now,
	}

	if err := s.store.CreateJob(ctx, job, units, s.maxUnitsPerJob); err != nil {
		if err == store.ErrJobKeyConflict {
			return "", "", &JobKeyConflictError{JobKey: jobKey}
		}
		if err == store.ErrTooManyUnits {
			return "", "", &TooManyUnitsError{Count: len(units), Max: s.maxUnitsPerJob}
		}
		return "", "", fmt.Errorf("create job: %w", err)
	}

	return jobKey, models.JobSubmitted, nil
}

// TooManyUnitsError reports a 413-class rejection: unit count exceeds cap.
type TooManyUnitsError struct {
	Count int
	Max   int
}

func (e *TooManyUnitsError) Error() string {
	return fmt.Sprintf("unit count %d exceeds cap %d", e.Count, e.Max)
}

// nextJobKey assigns a monotonic textual id of the form J<YYYYMMDD>_<seq>.
func (s *Submission) nextJobKey(now time.Time) string {
	n := atomic.AddUint64(&s.seq, 1)
	return "J" + now.Format("20060102") + "_" + strconv.FormatUint(n, 10)
}

func validate(req Request, maxUnitsPerJob int) error {
	if len(req.Items) == 0 {
		return &ValidationError{Reason: "items must be non-empty"}
	}
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		key := strings.TrimSpace(item.IndexKey)
		if key == "" {
			return &ValidationError{Reason: "indexKey must be non-empty"}
		}
		if !isValidYYYYMMDD(item.EffectiveDate) {
			return &ValidationError{Reason: fmt.Sprintf("effectiveDate %d is not a calendar-valid yyyymmdd", item.EffectiveDate)}
		}
		if strings.TrimSpace(item.AsofIndicator) == "" {
			return &ValidationError{Reason: "asofIndicator must be non-empty"}
		}
		dedupKey := fmt.Sprintf("%s|%d|%s", key, item.EffectiveDate, item.AsofIndicator)
		if _, dup := seen[dedupKey]; dup {
			return &ValidationError{Reason: fmt.Sprintf("duplicate item %s", dedupKey)}
		}
		seen[dedupKey] = struct{}{}
	}
	if maxUnitsPerJob > 0 && len(req.Items) > maxUnitsPerJob {
		return &TooManyUnitsError{Count: len(req.Items), Max: maxUnitsPerJob}
	}
	return nil
}

func isValidYYYYMMDD(date int) bool {
	if date < 10000101 || date > 99991231 {
		return false
	}
	year := date / 10000
	month := (date / 100) % 100
	day := date % 100
	if month < 1 || month > 12 {
		return false
	}
	if day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}
