// Package models holds the persisted entities of the export-coordination
// engine: Job, Unit, and Artifact.
package models

import "time"

// Job statuses. Terminal: Completed, Failed, Cancelled.
const (
	JobSubmitted = "SUBMITTED"
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
	JobCancelled = "CANCELLED"
)

// Unit statuses. Terminal: Succeeded, DLQ.
const (
	UnitPending   = "PENDING"
	UnitRunning   = "RUNNING"
	UnitSucceeded = "SUCCEEDED"
	UnitRetryWait = "RETRY_WAIT"
	UnitDLQ       = "DLQ"
)

// JobTerminal reports whether status is an absorbing job status.
func JobTerminal(status string) bool {
	switch status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// UnitTerminal reports whether status is an absorbing unit status.
func UnitTerminal(status string) bool {
	return status == UnitSucceeded || status == UnitDLQ
}

// Job is the client-facing submission; it owns its Units (cascade delete).
type Job struct {
	JobID        string
	JobKey       string
	Status       string
	TotalInputs  int
	RequestedAt  time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
}

// Unit is one (job, indexKey, effectiveDate, asofIndicator) work item.
type Unit struct {
	InputID       string
	JobID         string
	IndexKey      string
	EffectiveDate int // yyyymmdd
	AsofIndicator string
	Status        string
	AttemptCount  int
	NextRetryAt   *time.Time
	LeaseOwner    *string
	LeaseUntil    *time.Time
	S3Path        *string
	IsReused      bool
	ErrorMessage  *string
}

// Artifact is the reuse registry row for a natural key.
type Artifact struct {
	IndexKey      string
	EffectiveDate int
	AsofIndicator string
	S3Path        string
	SourceJobID   string
	GeneratedAt   time.Time
}

// JobCounts is the aggregate projection used by the admin surface.
type JobCounts struct {
	Total          int
	Pending        int
	Running        int
	Done           int
	Failed         int // DLQ count
	FilesGenerated int
	FilesReused    int
}
