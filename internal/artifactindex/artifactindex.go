// Package artifactindex implements the reuse registry and its decision
// algorithm: given a unit's natural key, decide whether to reuse a prior
// artifact or regenerate it.
package artifactindex

import (
	"context"
	"fmt"
	"time"

	"batchexport/internal/clock"
	"batchexport/internal/models"
)

// Decision is the outcome of evaluating the reuse policy for a unit.
type Decision struct {
	Reuse  bool
	S3Path string // populated iff Reuse
}

// ArtifactStore is the subset of Store used by the reuse decision and
// by Executor's post-generate upsert.
type ArtifactStore interface {
	LookupArtifact(ctx context.Context, key string, date int, asof string) (*models.Artifact, error)
	UpsertArtifact(ctx context.Context, a models.Artifact) error
}

// Index evaluates the reuse decision for a unit's natural key.
type Index struct {
	store     ArtifactStore
	clock     clock.Clock
	enabled   bool
	reuseDays int
	location  *time.Location
}

// New builds an Index. tz is an IANA zone name (e.g. "UTC"); "today" for
// the reuse window is computed in this single configured zone.
func New(store ArtifactStore, c clock.Clock, enabled bool, reuseDays int, tz string) (*Index, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Index{store: store, clock: c, enabled: enabled, reuseDays: reuseDays, location: loc}, nil
}

// Decide evaluates the reuse policy before any S3 or DB
// export-procedure work is done.
func (i *Index) Decide(ctx context.Context, key string, effectiveDate int, asof string) (Decision, error) {
	if !i.enabled {
		return Decision{Reuse: false}, nil
	}

	artifact, err := i.store.LookupArtifact(ctx, key, effectiveDate, asof)
	if err != nil {
		return Decision{}, fmt.Errorf("lookup artifact: %w", err)
	}
	if artifact == nil {
		return Decision{Reuse: false}, nil
	}

	today := yyyymmdd(i.clock.Now().In(i.location))
	cutoff := addDays(today, -i.reuseDays)

	// effectiveDate >= today - reuse.days: data is still within the
	// regeneration window and must be refreshed.
	if effectiveDate >= cutoff {
		return Decision{Reuse: false}, nil
	}

	return Decision{Reuse: true, S3Path: artifact.S3Path}, nil
}

// yyyymmdd packs a time.Time's date into the unit's int date encoding.
func yyyymmdd(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// addDays shifts a yyyymmdd-encoded date by n calendar days.
func addDays(date, n int) int {
	t := decodeDate(date)
	return yyyymmdd(t.AddDate(0, 0, n))
}

func decodeDate(date int) time.Time {
	year := date / 10000
	month := (date / 100) % 100
	day := date % 100
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
