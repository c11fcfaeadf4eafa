// Package retry classifies unit execution errors and computes bounded
// exponential backoff with full jitter for the next attempt.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Classification distinguishes errors worth retrying from permanent ones.
type Classification int

const (
	Transient Classification = iota
	Permanent
)

// Classifier maps an execution error to a Classification. Executor
// supplies this based on the export procedure / upload error it saw
// (connection reset, deadlock, storage 5xx, timeout => Transient;
// validation, bad arguments, auth, storage 4xx other than throttling
// => Permanent).
type Classifier func(err error) Classification

// Outcome is the result of Decide: either schedule a retry at a time, or
// send the unit to the dead-letter queue.
type Outcome struct {
	DLQ         bool
	NextAttempt time.Time
}

// Policy holds the configured bounds for classification and backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// New builds a Policy from configuration.
func New(maxAttempts int, baseDelay, maxDelay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// NextAttempt computes the next-attempt time via bounded exponential
// backoff with full jitter: raw = min(cap, base*2^(attempt-1)),
// delay = uniform(0, raw).
func (p Policy) NextAttempt(attemptCount int, now time.Time) time.Time {
	if attemptCount < 1 {
		attemptCount = 1
	}
	raw := float64(p.BaseDelay) * math.Pow(2, float64(attemptCount-1))
	if ceiling := float64(p.MaxDelay); raw > ceiling {
		raw = ceiling
	}
	if raw <= 0 {
		return now
	}
	delay := time.Duration(rand.Int63n(int64(raw) + 1))
	return now.Add(delay)
}

// Decide applies the classification and attempt budget to produce a
// terminal retry-scheduling decision.
func (p Policy) Decide(class Classification, attemptCount int, now time.Time) Outcome {
	if class == Permanent {
		return Outcome{DLQ: true}
	}
	if attemptCount < p.MaxAttempts {
		return Outcome{DLQ: false, NextAttempt: p.NextAttempt(attemptCount, now)}
	}
	return Outcome{DLQ: true}
}
