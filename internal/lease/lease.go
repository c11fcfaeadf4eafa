// Package lease implements atomic claim, heartbeat/renewal, and
// reclamation of unit leases. Reclamation is implicit: an expired lease
// is visible to Store.SelectEligible, so no separate sweeper is required.
package lease

import (
	"context"
	"time"

	"batchexport/internal/clock"
)

// Claimer is the subset of Store used for claiming and renewing leases.
type Claimer interface {
	Claim(ctx context.Context, inputID, workerID string, leaseSeconds int, now time.Time) (bool, error)
	Renew(ctx context.Context, inputID, workerID string, leaseSeconds int, now time.Time) (bool, error)
}

// Manager owns lease policy (duration, renewal cadence) over a Claimer.
type Manager struct {
	store        Claimer
	clock        clock.Clock
	leaseSeconds int
}

// New builds a Manager with the configured lease duration.
func New(store Claimer, c clock.Clock, leaseSeconds int) *Manager {
	return &Manager{store: store, clock: c, leaseSeconds: leaseSeconds}
}

// LeaseSeconds returns the configured lease duration.
func (m *Manager) LeaseSeconds() int { return m.leaseSeconds }

// TryClaim performs the one conditional update that both verifies
// eligibility and claims the unit. The WHERE predicate plus the written
// values are the entire safety gate; no higher-level lock is used.
func (m *Manager) TryClaim(ctx context.Context, inputID, workerID string) (bool, error) {
	return m.store.Claim(ctx, inputID, workerID, m.leaseSeconds, m.clock.Now())
}

// Renew extends lease_until only while lease_owner = workerId. Callers
// renew at leaseSeconds/2.
func (m *Manager) Renew(ctx context.Context, inputID, workerID string) (bool, error) {
	return m.store.Renew(ctx, inputID, workerID, m.leaseSeconds, m.clock.Now())
}

// RenewalInterval is the half-life at which Executor should renew an
// in-progress unit's lease.
func (m *Manager) RenewalInterval() time.Duration {
	return time.Duration(m.leaseSeconds) * time.Second / 2
}
