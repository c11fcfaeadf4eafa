package retry

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestNextAttemptWithinBounds(t *testing.T) {
	rand.Seed(1)
	p := New(5, time.Second, 8*time.Second)
	now := time.Unix(0, 0)

	for attempt := 1; attempt <= 6; attempt++ {
		next := p.NextAttempt(attempt, now)
		if next.Before(now) {
			t.Fatalf("attempt %d: next attempt before now", attempt)
		}
		if next.Sub(now) > p.MaxDelay {
			t.Fatalf("attempt %d: delay %s exceeds max %s", attempt, next.Sub(now), p.MaxDelay)
		}
	}
}

func TestDecidePermanentGoesToDLQ(t *testing.T) {
	p := New(5, time.Second, time.Minute)
	out := p.Decide(Permanent, 1, time.Now())
	if !out.DLQ {
		t.Fatalf("expected permanent error to DLQ")
	}
}

func TestDecideTransientRetriesUntilMaxAttempts(t *testing.T) {
	p := New(3, time.Second, time.Minute)
	now := time.Now()

	out := p.Decide(Transient, 2, now)
	if out.DLQ {
		t.Fatalf("attempt_count=2 < maxAttempts=3 should retry, not DLQ")
	}

	out = p.Decide(Transient, 3, now)
	if !out.DLQ {
		t.Fatalf("attempt_count=3 == maxAttempts=3 should DLQ")
	}
}

func TestDefaultClassifierTaggedErrors(t *testing.T) {
	if got := DefaultClassifier(&TransientError{Err: errors.New("boom")}); got != Transient {
		t.Fatalf("expected Transient, got %v", got)
	}
	if got := DefaultClassifier(&PermanentError{Err: errors.New("bad args")}); got != Permanent {
		t.Fatalf("expected Permanent, got %v", got)
	}
}

func TestDefaultClassifierSubstringMatch(t *testing.T) {
	if got := DefaultClassifier(errors.New("dial tcp: connection reset by peer")); got != Transient {
		t.Fatalf("expected Transient for connection reset, got %v", got)
	}
	if got := DefaultClassifier(errors.New("invalid argument: asof_indicator required")); got != Permanent {
		t.Fatalf("expected Permanent for validation error, got %v", got)
	}
}
