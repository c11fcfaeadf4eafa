package admin

import (
	"context"
	"testing"
	"time"

	"batchexport/internal/models"
	"batchexport/internal/store"
)

type fakeStore struct {
	job          models.Job
	units        []models.Unit
	dlqUnits     []models.Unit
	counts       models.JobCounts
	redriveErr   error
	redriveCalls []string
	cancelCalls  []string
}

func (f *fakeStore) JobIDForKey(ctx context.Context, jobKey string) (string, error) {
	if jobKey != "" && f.job.JobKey == jobKey {
		return f.job.JobID, nil
	}
	return "", store.ErrJobNotFound
}

func (f *fakeStore) JobDetail(ctx context.Context, jobID string) (models.Job, []models.Unit, error) {
	if f.job.JobID == "" {
		return models.Job{}, nil, store.ErrJobNotFound
	}
	return f.job, f.units, nil
}

func (f *fakeStore) JobCounts(ctx context.Context, jobID string) (models.JobCounts, error) {
	return f.counts, nil
}

func (f *fakeStore) ResetUnitForRedrive(ctx context.Context, inputID string) error {
	f.redriveCalls = append(f.redriveCalls, inputID)
	return f.redriveErr
}

func (f *fakeStore) CancelJob(ctx context.Context, jobID, errorMessage string, now time.Time) error {
	f.cancelCalls = append(f.cancelCalls, jobID)
	return nil
}

func (f *fakeStore) ListDLQUnits(ctx context.Context, limit int) ([]models.Unit, error) {
	return f.dlqUnits, nil
}

func TestJobStatusProjection(t *testing.T) {
	s3 := "s3://bucket/key.csv"
	fs := &fakeStore{
		job: models.Job{JobID: "j1", JobKey: "J1", Status: models.JobCompleted, RequestedAt: time.Now()},
		units: []models.Unit{
			{InputID: "u1", JobID: "j1", Status: models.UnitSucceeded, S3Path: &s3},
		},
		counts: models.JobCounts{Total: 1, Done: 1},
	}
	a := New(fs)

	status, err := a.JobStatus(context.Background(), "J1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.JobKey != "J1" {
		t.Fatalf("expected status.JobKey J1, got %q", status.JobKey)
	}
	if len(status.Units) != 1 || status.Units[0].S3Path == nil {
		t.Fatalf("expected one unit with s3Path populated, got %+v", status.Units)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	a := New(&fakeStore{})
	if _, err := a.JobStatus(context.Background(), "missing"); err != store.ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRedriveDelegatesToStore(t *testing.T) {
	fs := &fakeStore{}
	a := New(fs)
	if err := a.Redrive(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fs.redriveCalls) != 1 || fs.redriveCalls[0] != "u1" {
		t.Fatalf("expected redrive call for u1, got %v", fs.redriveCalls)
	}
}

func TestCancelResolvesJobKeyBeforeCancelling(t *testing.T) {
	fs := &fakeStore{job: models.Job{JobID: "j1", JobKey: "J1"}}
	a := New(fs)
	if err := a.Cancel(context.Background(), "J1", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fs.cancelCalls) != 1 || fs.cancelCalls[0] != "j1" {
		t.Fatalf("expected CancelJob called with resolved job_id j1, got %v", fs.cancelCalls)
	}
}

func TestCancelUnknownJobKeyIsNotFound(t *testing.T) {
	a := New(&fakeStore{job: models.Job{JobID: "j1", JobKey: "J1"}})
	if err := a.Cancel(context.Background(), "unknown", time.Now()); err != store.ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestListDLQReturnsStoreProjection(t *testing.T) {
	fs := &fakeStore{
		dlqUnits: []models.Unit{
			{InputID: "u1", JobID: "j1", Status: models.UnitDLQ},
		},
	}
	a := New(fs)
	entries, err := a.ListDLQ(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].InputID != "u1" {
		t.Fatalf("expected only u1 in dlq listing, got %+v", entries)
	}
}
