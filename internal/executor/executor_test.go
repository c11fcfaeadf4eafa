package executor

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"batchexport/internal/artifactindex"
	"batchexport/internal/clock"
	"batchexport/internal/exportproc"
	"batchexport/internal/lease"
	"batchexport/internal/models"
	"batchexport/internal/retry"
)

type fakeStore struct {
	jobStatus        string
	markedReused     bool
	markedGenerated  bool
	scheduledRetry   bool
	movedToDLQ       bool
	failedJob        bool
	upsertedArtifact bool
	claimOwner       string
	claimFails       bool
}

func (f *fakeStore) MarkSucceededReused(ctx context.Context, inputID, workerID, s3Path string) (bool, error) {
	f.markedReused = true
	return !f.claimFails, nil
}
func (f *fakeStore) MarkSucceededGenerated(ctx context.Context, inputID, workerID, s3Path string) (bool, error) {
	f.markedGenerated = true
	return !f.claimFails, nil
}
func (f *fakeStore) ScheduleRetry(ctx context.Context, inputID, workerID string, nextRetryAt time.Time, errorMessage string) (bool, error) {
	f.scheduledRetry = true
	return true, nil
}
func (f *fakeStore) MoveToDLQ(ctx context.Context, inputID, workerID, errorMessage string) (bool, error) {
	f.movedToDLQ = true
	return true, nil
}
func (f *fakeStore) FailJob(ctx context.Context, jobID, errorMessage string, now time.Time) error {
	f.failedJob = true
	return nil
}
func (f *fakeStore) GetJobStatus(ctx context.Context, jobID string) (string, error) {
	return f.jobStatus, nil
}
func (f *fakeStore) UpsertArtifact(ctx context.Context, a models.Artifact) error {
	f.upsertedArtifact = true
	return nil
}

type fakeReuse struct {
	decision artifactindex.Decision
	err      error
}

func (f fakeReuse) Decide(ctx context.Context, key string, effectiveDate int, asof string) (artifactindex.Decision, error) {
	return f.decision, f.err
}

type fakeFinalizer struct{ called int }

func (f *fakeFinalizer) TryComplete(ctx context.Context, jobID string) { f.called++ }

type fakeUploader struct{ err error }

func (f fakeUploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	// Drain the pipe like a real uploader would, regardless of outcome,
	// so the streaming writer goroutine never blocks on a full buffer.
	_, _ = io.Copy(io.Discard, body)
	if f.err != nil {
		return "", f.err
	}
	return "s3://bucket/" + key, nil
}

type fakeRowIterator struct {
	rows [][]string
	i    int
}

func (it *fakeRowIterator) Next() bool { return it.i < len(it.rows) }
func (it *fakeRowIterator) Values() ([]string, error) {
	v := it.rows[it.i]
	it.i++
	return v, nil
}
func (it *fakeRowIterator) Err() error { return nil }
func (it *fakeRowIterator) Close()     {}

type fakeSource struct{ rows [][]string }

func (f fakeSource) Stream(ctx context.Context, indexKey string, effectiveDate int, asofIndicator string) (exportproc.RowIterator, error) {
	return &fakeRowIterator{rows: f.rows}, nil
}

func newTestExecutor(store Store, reuse ReuseDecider, source exportproc.Source, uploader fakeUploader, finalizer Finalizer) *Executor {
	leaseMgr := lease.New(nil, clock.NewFake(time.Unix(0, 0)), 60)
	return New(store, reuse, source, uploader, leaseMgr, retry.New(5, time.Millisecond, time.Millisecond), retry.DefaultClassifier, finalizer, clock.NewFake(time.Unix(0, 0)), "base", "worker-1")
}

func TestExecuteJobTerminalShortCircuitsToDLQ(t *testing.T) {
	store := &fakeStore{jobStatus: models.JobCancelled}
	finalizer := &fakeFinalizer{}
	ex := newTestExecutor(store, fakeReuse{}, fakeSource{}, fakeUploader{}, finalizer)

	unit := models.Unit{InputID: "u1", JobID: "j1", IndexKey: "ABC", EffectiveDate: 20200101, AsofIndicator: "CLS"}
	if err := ex.Execute(context.Background(), unit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.movedToDLQ {
		t.Fatalf("expected unit to move to DLQ on terminal job guard")
	}
	if store.markedGenerated || store.markedReused {
		t.Fatalf("expected no further mutation once job-terminal guard fires")
	}
}

func TestExecuteReusePath(t *testing.T) {
	store := &fakeStore{jobStatus: models.JobRunning}
	finalizer := &fakeFinalizer{}
	ex := newTestExecutor(store, fakeReuse{decision: artifactindex.Decision{Reuse: true, S3Path: "s3://bucket/prior.csv"}}, fakeSource{}, fakeUploader{}, finalizer)

	unit := models.Unit{InputID: "u1", JobID: "j1", IndexKey: "ABC", EffectiveDate: 20200101, AsofIndicator: "CLS"}
	if err := ex.Execute(context.Background(), unit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.markedReused {
		t.Fatalf("expected reuse marking")
	}
	if store.markedGenerated {
		t.Fatalf("reuse path must not invoke generate")
	}
	if finalizer.called != 1 {
		t.Fatalf("expected fast-path finalize once, got %d", finalizer.called)
	}
}

func TestExecuteGeneratePath(t *testing.T) {
	store := &fakeStore{jobStatus: models.JobRunning}
	finalizer := &fakeFinalizer{}
	source := fakeSource{rows: [][]string{{"a", "b"}, {"c", "d"}}}
	ex := newTestExecutor(store, fakeReuse{decision: artifactindex.Decision{Reuse: false}}, source, fakeUploader{}, finalizer)

	unit := models.Unit{InputID: "u1", JobID: "j1", IndexKey: "DEF", EffectiveDate: 20260110, AsofIndicator: "CLS"}
	if err := ex.Execute(context.Background(), unit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.upsertedArtifact || !store.markedGenerated {
		t.Fatalf("expected artifact upsert and generated marking")
	}
	if finalizer.called != 1 {
		t.Fatalf("expected fast-path finalize once, got %d", finalizer.called)
	}
}

func TestExecuteUploadFailureSchedulesRetry(t *testing.T) {
	store := &fakeStore{jobStatus: models.JobRunning}
	finalizer := &fakeFinalizer{}
	source := fakeSource{rows: [][]string{{"a"}}}
	ex := newTestExecutor(store, fakeReuse{decision: artifactindex.Decision{Reuse: false}}, source, fakeUploader{err: errors.New("connection reset by peer")}, finalizer)

	unit := models.Unit{InputID: "u1", JobID: "j1", IndexKey: "DEF", EffectiveDate: 20260110, AsofIndicator: "CLS", AttemptCount: 1}
	if err := ex.Execute(context.Background(), unit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.scheduledRetry {
		t.Fatalf("expected transient upload failure to schedule a retry")
	}
	if store.movedToDLQ {
		t.Fatalf("did not expect DLQ on a transient failure under maxAttempts")
	}
}

func TestExecutePermanentFailureDLQsAndFailsJobFastPath(t *testing.T) {
	store := &fakeStore{jobStatus: models.JobRunning}
	finalizer := &fakeFinalizer{}
	source := fakeSource{rows: [][]string{{"a"}}}
	ex := newTestExecutor(store, fakeReuse{decision: artifactindex.Decision{Reuse: false}}, source, fakeUploader{err: errors.New("invalid argument: bad asof")}, finalizer)

	unit := models.Unit{InputID: "u1", JobID: "j1", IndexKey: "DEF", EffectiveDate: 20260110, AsofIndicator: "CLS", AttemptCount: 1}
	if err := ex.Execute(context.Background(), unit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.movedToDLQ {
		t.Fatalf("expected permanent failure to move unit to DLQ")
	}
	if !store.failedJob {
		t.Fatalf("expected fail-fast FailJob call after DLQ")
	}
	if finalizer.called != 1 {
		t.Fatalf("expected fast-path finalize once after DLQ, got %d", finalizer.called)
	}
}
