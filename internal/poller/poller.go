// Package poller implements the per-worker loop that selects eligible
// units, claims them via the lease manager, and hands them to Executor
// under a bounded concurrency budget. maxInFlight is the only admission
// control; pollers never block on the database connection pool by design.
package poller

import (
	"context"
	"math/rand"
	"time"

	"batchexport/internal/clock"
	"batchexport/internal/lease"
	"batchexport/internal/models"
	"batchexport/internal/telemetry"
)

// Selector is the subset of Store used to find eligible unit ids and
// load their full row for execution.
type Selector interface {
	SelectEligible(ctx context.Context, limit int, now time.Time) ([]string, error)
	// LoadUnit fetches the full unit row needed by Executor after a claim
	// wins. Implemented by internal/store as a dedicated single-row query,
	// which keeps the poll hot path cheap.
	LoadUnit(ctx context.Context, inputID string) (models.Unit, error)
}

// Executor runs one claimed unit to a terminal state.
type Executor interface {
	Execute(ctx context.Context, unit models.Unit) error
}

// Config bounds the poller's batch size, idle backoff, and concurrency.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxInFlight  int
}

// Poller is the per-worker claim loop.
type Poller struct {
	store    Selector
	lease    *lease.Manager
	executor Executor
	clock    clock.Clock
	cfg      Config
	workerID string
	wake     <-chan struct{}
}

// New builds a Poller.
func New(store Selector, leaseMgr *lease.Manager, exec Executor, c clock.Clock, cfg Config, workerID string) *Poller {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Poller{store: store, lease: leaseMgr, executor: exec, clock: c, cfg: cfg, workerID: workerID}
}

// WithWakeChannel attaches an optional early-wake signal (e.g. a Redis
// poll hint subscription): when it fires, the next empty-batch backoff
// is cut short. Losing the signal only costs one extra poll interval.
func (p *Poller) WithWakeChannel(wake <-chan struct{}) *Poller {
	p.wake = wake
	return p
}

// Run executes the poll loop until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	sem := make(chan struct{}, p.cfg.MaxInFlight)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ids, err := p.store.SelectEligible(ctx, p.cfg.BatchSize, p.clock.Now())
		if err != nil {
			telemetry.StoreErrors.Inc()
			if !p.sleepOrWake(ctx, p.pollBackoff()) {
				return ctx.Err()
			}
			continue
		}

		claimedAny := false
		for _, id := range ids {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}

			ok, err := p.lease.TryClaim(ctx, id, p.workerID)
			if err != nil || !ok {
				<-sem
				continue
			}
			claimedAny = true
			telemetry.UnitsClaimed.Inc()

			go func(inputID string) {
				defer func() { <-sem }()
				unit, err := p.store.LoadUnit(ctx, inputID)
				if err != nil {
					return
				}
				telemetry.InFlightGauge.Inc()
				defer telemetry.InFlightGauge.Dec()
				_ = p.executor.Execute(ctx, unit)
			}(id)
		}

		if !claimedAny {
			if !p.sleepOrWake(ctx, p.pollBackoff()) {
				return ctx.Err()
			}
		}
	}
}

func (p *Poller) pollBackoff() time.Duration {
	jitter := time.Duration(rand.Int63n(int64(p.cfg.PollInterval) / 4 + 1))
	return p.cfg.PollInterval + jitter
}

// sleepOrWake waits up to d, returning early if ctx is cancelled (false)
// or a wake hint arrives (true, same as a normal timeout).
func (p *Poller) sleepOrWake(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-p.wake:
		return true
	}
}
