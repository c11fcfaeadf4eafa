// Package finalizer drives jobs to COMPLETED or FAILED. Two guard
// predicates form the complete state transition: both are idempotent
// single conditional updates, safe to call concurrently. The
// fail predicate is evaluated first so a DLQ cannot be masked by a late
// completion.
package finalizer

import (
	"context"
	"log"
	"time"

	"batchexport/internal/clock"
	"batchexport/internal/telemetry"
)

// Store is the subset used by the finalizer.
type Store interface {
	TryFailJobFromDLQ(ctx context.Context, jobID string, now time.Time) (bool, error)
	TryCompleteJob(ctx context.Context, jobID string, now time.Time) (bool, error)
	NonTerminalJobIDs(ctx context.Context, limit int) ([]string, error)
}

// Finalizer reconciles job terminal state, both opportunistically
// (fast path, called by Executor) and periodically (eventual correctness).
type Finalizer struct {
	store    Store
	clock    clock.Clock
	interval time.Duration
	batch    int
}

// New builds a Finalizer with the configured periodic cadence.
func New(store Store, c clock.Clock, interval time.Duration) *Finalizer {
	return &Finalizer{store: store, clock: c, interval: interval, batch: 500}
}

// TryComplete attempts both guard predicates for a single job,
// fail-predicate first, best-effort. This is the fast path invoked by
// Executor immediately after a terminal unit transition.
func (f *Finalizer) TryComplete(ctx context.Context, jobID string) {
	now := f.clock.Now()
	if failed, err := f.store.TryFailJobFromDLQ(ctx, jobID, now); err == nil && failed {
		telemetry.JobsFailed.Inc()
		return
	}
	if completed, err := f.store.TryCompleteJob(ctx, jobID, now); err == nil && completed {
		telemetry.JobsCompleted.Inc()
	}
}

// Run periodically reconciles every non-terminal job until ctx is
// cancelled, guaranteeing eventual correctness even if a fast-path call
// was lost to a crash.
func (f *Finalizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.sweep(ctx)
		}
	}
}

func (f *Finalizer) sweep(ctx context.Context) {
	ids, err := f.store.NonTerminalJobIDs(ctx, f.batch)
	if err != nil {
		log.Printf("finalizer: list non-terminal jobs: %v", err)
		return
	}
	for _, id := range ids {
		f.TryComplete(ctx, id)
	}
}
