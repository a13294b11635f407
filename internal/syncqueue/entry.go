package syncqueue

import (
	"math"
	"time"

	"github.com/roach88/readykit/internal/fault"
	"github.com/roach88/readykit/internal/report"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusFailed   Status = "failed"
	StatusSynced   Status = "synced"
)

// FailureKind classifies the most recent delivery failure.
type FailureKind string

const (
	FailureNetwork  FailureKind = "network"
	FailureRejected FailureKind = "rejected"
	FailureUnknown  FailureKind = "unknown"
)

// Entry is one queued report and its delivery state.
type Entry struct {
	Report        report.IncidentReport `json:"report"`
	Status        Status                `json:"status"`
	Attempts      int                   `json:"attempts"`
	LastError     string                `json:"last_error,omitempty"`
	Failure       FailureKind           `json:"failure,omitempty"`
	Seq           int64                 `json:"seq"`
	EnqueuedAt    time.Time             `json:"enqueued_at"`
	NextAttemptAt time.Time             `json:"next_attempt_at"`
}

// ID returns the report ID, which identifies the entry.
func (e Entry) ID() string { return e.Report.ID }

// classify maps a submit error onto a FailureKind.
func classify(err error) FailureKind {
	switch fault.KindOf(err) {
	case fault.KindNetwork:
		return FailureNetwork
	case fault.KindValidation:
		return FailureRejected
	default:
		return FailureUnknown
	}
}

// Backoff bounds automatic retries of failed entries.
//
// Delay after the n-th failed attempt is Base·2^(n-1), capped at Max.
// Once Attempts reaches MaxAttempts the entry is only retried through
// Queue.Retry. Zero fields disable the corresponding limit.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Delay returns how long to wait after the given number of failed attempts.
func (b Backoff) Delay(attempts int) time.Duration {
	if b.Base <= 0 || attempts <= 0 {
		return 0
	}
	limit := b.Max
	if limit <= 0 {
		limit = math.MaxInt64
	}
	d := b.Base
	for i := 1; i < attempts && d < limit; i++ {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

// Exhausted reports whether automatic retries have been used up.
func (b Backoff) Exhausted(attempts int) bool {
	return b.MaxAttempts > 0 && attempts >= b.MaxAttempts
}
