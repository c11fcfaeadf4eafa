// Package executor executes exactly one unit to a terminal state: decide
// reuse vs generate, invoke the export procedure, stream rows to CSV,
// upload, finalize. It never holds a database transaction open across
// the object-storage upload.
package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"batchexport/internal/artifactindex"
	"batchexport/internal/artifactstore"
	"batchexport/internal/clock"
	"batchexport/internal/csvexport"
	"batchexport/internal/exportproc"
	"batchexport/internal/lease"
	"batchexport/internal/models"
	"batchexport/internal/retry"
	"batchexport/internal/telemetry"
)

// Store is the subset of internal/store used by Executor.
type Store interface {
	MarkSucceededReused(ctx context.Context, inputID, workerID, s3Path string) (bool, error)
	MarkSucceededGenerated(ctx context.Context, inputID, workerID, s3Path string) (bool, error)
	ScheduleRetry(ctx context.Context, inputID, workerID string, nextRetryAt time.Time, errorMessage string) (bool, error)
	MoveToDLQ(ctx context.Context, inputID, workerID, errorMessage string) (bool, error)
	FailJob(ctx context.Context, jobID, errorMessage string, now time.Time) error
	GetJobStatus(ctx context.Context, jobID string) (string, error)
	UpsertArtifact(ctx context.Context, a models.Artifact) error
}

// ReuseDecider is the subset of artifactindex.Index used by Executor.
type ReuseDecider interface {
	Decide(ctx context.Context, key string, effectiveDate int, asof string) (artifactindex.Decision, error)
}

// Finalizer is invoked opportunistically after every terminal unit
// transition (the fast-path completion attempt).
type Finalizer interface {
	TryComplete(ctx context.Context, jobID string)
}

// Executor ties together the reuse decision, the export procedure, CSV
// streaming, upload, and terminal mutation for one unit.
type Executor struct {
	store     Store
	reuse     ReuseDecider
	source    exportproc.Source
	uploader  artifactstore.Uploader
	lease     *lease.Manager
	retry     retry.Policy
	classify  retry.Classifier
	finalizer Finalizer
	clock     clock.Clock
	basePath  string
	workerID  string
}

// New builds an Executor.
func New(store Store, reuse ReuseDecider, source exportproc.Source, uploader artifactstore.Uploader,
	leaseMgr *lease.Manager, retryPolicy retry.Policy, classify retry.Classifier, finalizer Finalizer,
	c clock.Clock, basePath, workerID string) *Executor {
	return &Executor{
		store: store, reuse: reuse, source: source, uploader: uploader,
		lease: leaseMgr, retry: retryPolicy, classify: classify, finalizer: finalizer,
		clock: c, basePath: basePath, workerID: workerID,
	}
}

// Execute runs unit to a terminal state. unit must already be RUNNING
// under e's workerID (claimed by the caller via lease.Manager.TryClaim).
func (e *Executor) Execute(ctx context.Context, unit models.Unit) error {
	jobStatus, err := e.store.GetJobStatus(ctx, unit.JobID)
	if err != nil {
		return fmt.Errorf("job guard: %w", err)
	}
	if jobStatus == models.JobFailed || jobStatus == models.JobCancelled {
		// A unit claimed under an already-terminal job short-circuits
		// to DLQ with a fixed reason rather than silently no-opping.
		if ok, err := e.store.MoveToDLQ(ctx, unit.InputID, e.workerID, "job-terminal"); err == nil && ok {
			e.finalizer.TryComplete(ctx, unit.JobID)
		}
		return nil
	}

	decision, err := e.reuse.Decide(ctx, unit.IndexKey, unit.EffectiveDate, unit.AsofIndicator)
	if err != nil {
		e.handleFailure(ctx, unit, err)
		return nil
	}

	if decision.Reuse {
		if ok, err := e.store.MarkSucceededReused(ctx, unit.InputID, e.workerID, decision.S3Path); err == nil && ok {
			telemetry.UnitsSucceeded.Inc()
			telemetry.UnitsReused.Inc()
			e.finalizer.TryComplete(ctx, unit.JobID)
		}
		return nil
	}

	if err := e.generate(ctx, unit); err != nil {
		e.handleFailure(ctx, unit, err)
		return nil
	}
	return nil
}

// generate runs the export-procedure/stream/upload/finalize path,
// renewing the lease at its configured half-life while work is in flight.
func (e *Executor) generate(ctx context.Context, unit models.Unit) error {
	renewCtx, stopRenewal := context.WithCancel(ctx)
	defer stopRenewal()
	go e.renewPeriodically(renewCtx, unit.InputID)

	path := artifactstore.DeterministicPath(e.basePath, unit.IndexKey, unit.EffectiveDate, unit.AsofIndicator, unit.JobID)

	// Rows stream straight from the export procedure into the upload body
	// through a pipe; neither side ever holds the full CSV in memory.
	pr, pw := io.Pipe()
	streamErrCh := make(chan error, 1)
	go func() {
		_, err := csvexport.Stream(ctx, e.source, pw, unit.IndexKey, unit.EffectiveDate, unit.AsofIndicator)
		streamErrCh <- err
		pw.CloseWithError(err)
	}()

	s3Path, uploadErr := e.uploader.Upload(ctx, path, pr, "text/csv")
	if uploadErr != nil {
		// Unblock the streaming goroutine if the upload bailed before EOF.
		pr.CloseWithError(uploadErr)
	}
	streamErr := <-streamErrCh
	if streamErr != nil && uploadErr == nil {
		return fmt.Errorf("export %s: %w", unit.InputID, streamErr)
	}
	if uploadErr != nil {
		return fmt.Errorf("upload %s: %w", unit.InputID, uploadErr)
	}

	if err := e.store.UpsertArtifact(ctx, models.Artifact{
		IndexKey:      unit.IndexKey,
		EffectiveDate: unit.EffectiveDate,
		AsofIndicator: unit.AsofIndicator,
		S3Path:        s3Path,
		SourceJobID:   unit.JobID,
		GeneratedAt:   e.clock.Now(),
	}); err != nil {
		return fmt.Errorf("upsert artifact %s: %w", unit.InputID, err)
	}

	ok, err := e.store.MarkSucceededGenerated(ctx, unit.InputID, e.workerID, s3Path)
	if err != nil {
		return fmt.Errorf("mark succeeded %s: %w", unit.InputID, err)
	}
	if ok {
		telemetry.UnitsSucceeded.Inc()
		telemetry.UnitsGenerated.Inc()
		e.finalizer.TryComplete(ctx, unit.JobID)
	}
	// ok == false means the lease was lost after a durable upload+upsert;
	// per the streaming invariant this is a harmless no-op, since the
	// next owner observes the artifact already recorded.
	return nil
}

func (e *Executor) renewPeriodically(ctx context.Context, inputID string) {
	interval := e.lease.RenewalInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = e.lease.Renew(ctx, inputID, e.workerID)
		}
	}
}

// handleFailure classifies err and either schedules a retry or moves the
// unit to the DLQ, fail-fasting the parent job in the DLQ case.
func (e *Executor) handleFailure(ctx context.Context, unit models.Unit, err error) {
	class := e.classify(err)
	outcome := e.retry.Decide(class, unit.AttemptCount, e.clock.Now())

	if outcome.DLQ {
		ok, dlqErr := e.store.MoveToDLQ(ctx, unit.InputID, e.workerID, err.Error())
		if dlqErr != nil || !ok {
			return
		}
		telemetry.UnitsDeadLettered.Inc()
		_ = e.store.FailJob(ctx, unit.JobID, "One or more inputs moved to DLQ", e.clock.Now())
		e.finalizer.TryComplete(ctx, unit.JobID)
		return
	}

	if ok, _ := e.store.ScheduleRetry(ctx, unit.InputID, e.workerID, outcome.NextAttempt, err.Error()); ok {
		telemetry.UnitsRetried.Inc()
	}
}
