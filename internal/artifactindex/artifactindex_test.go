package artifactindex

import (
	"context"
	"testing"
	"time"

	"batchexport/internal/clock"
	"batchexport/internal/models"
)

type fakeArtifactStore struct {
	artifact *models.Artifact
}

func (f *fakeArtifactStore) LookupArtifact(ctx context.Context, key string, date int, asof string) (*models.Artifact, error) {
	return f.artifact, nil
}

func (f *fakeArtifactStore) UpsertArtifact(ctx context.Context, a models.Artifact) error {
	return nil
}

func TestDecideNoArtifactNeverReuses(t *testing.T) {
	idx, err := New(&fakeArtifactStore{}, clock.NewFake(time.Now()), true, 7, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := idx.Decide(context.Background(), "k", 20260101, "EOD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Reuse {
		t.Fatalf("expected no reuse without a prior artifact")
	}
}

func TestDecideDisabledNeverReuses(t *testing.T) {
	store := &fakeArtifactStore{artifact: &models.Artifact{S3Path: "s3://bucket/old.csv"}}
	idx, err := New(store, clock.NewFake(time.Now()), false, 7, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := idx.Decide(context.Background(), "k", 20250101, "EOD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Reuse {
		t.Fatalf("expected no reuse when disabled, even with a matching artifact")
	}
}

// TestDecideReuseWindowBoundary exercises the exact cutoff: effectiveDate
// == today - reuseDays must still regenerate (only dates strictly before
// the cutoff reuse),
// while effectiveDate == today - reuseDays - 1 falls outside the window
// and must reuse.
func TestDecideReuseWindowBoundary(t *testing.T) {
	today := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFake(today)
	store := &fakeArtifactStore{artifact: &models.Artifact{S3Path: "s3://bucket/cached.csv"}}
	idx, err := New(store, fake, true, 7, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	atCutoff := 20260727 // today - 7 days
	d, err := idx.Decide(context.Background(), "k", atCutoff, "EOD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Reuse {
		t.Fatalf("expected regeneration at the cutoff date, got reuse")
	}

	justOutside := 20260726 // today - 8 days
	d, err = idx.Decide(context.Background(), "k", justOutside, "EOD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Reuse || d.S3Path != "s3://bucket/cached.csv" {
		t.Fatalf("expected reuse one day outside the window, got %+v", d)
	}
}

func TestDecideRespectsConfiguredTimezone(t *testing.T) {
	// 2026-08-03T02:00:00+09:00 is still 2026-08-02 in UTC; the index must
	// compute "today" in its configured zone, not UTC.
	tokyoNow := time.Date(2026, 8, 3, 2, 0, 0, 0, mustLoc(t, "Asia/Tokyo"))
	fake := clock.NewFake(tokyoNow)
	store := &fakeArtifactStore{artifact: &models.Artifact{S3Path: "s3://bucket/cached.csv"}}
	idx, err := New(store, fake, true, 1, "Asia/Tokyo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := idx.Decide(context.Background(), "k", 20260802, "EOD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Reuse {
		t.Fatalf("expected today-minus-one (cutoff) to regenerate, not reuse")
	}

	// One day earlier lies before the Tokyo cutoff and reuses; with "today"
	// taken in UTC (2026-08-02) it would sit at the cutoff and regenerate.
	d, err = idx.Decide(context.Background(), "k", 20260801, "EOD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Reuse {
		t.Fatalf("expected reuse for 20260801 with today computed in Asia/Tokyo, got %+v", d)
	}
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}
