package scheduler

import (
	"context"
	"time"
)

// ActionFailure records a capability that returned an error or panicked.
type ActionFailure struct {
	Capability string `json:"capability"`
	Error      string `json:"error"`
}

// Outcome describes one completed pass. FreedBytes is BytesBefore minus
// BytesAfter in used memory and may be negative. When either sample failed,
// the byte fields are zero and SampleError is set.
type Outcome struct {
	ID          string          `json:"id"`
	Trigger     Trigger         `json:"trigger"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
	BytesBefore int64           `json:"bytes_before"`
	BytesAfter  int64           `json:"bytes_after"`
	FreedBytes  int64           `json:"freed_bytes"`
	Actions     []string        `json:"actions"`
	Failures    []ActionFailure `json:"failures,omitempty"`
	SampleError string          `json:"sample_error,omitempty"`
}

// Reporter receives every pass outcome.
type Reporter interface {
	ReportOutcome(ctx context.Context, outcome Outcome)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, outcome Outcome)

func (f ReporterFunc) ReportOutcome(ctx context.Context, outcome Outcome) { f(ctx, outcome) }

// Reporters fans an outcome out to several reporters in order.
type Reporters []Reporter

func (rs Reporters) ReportOutcome(ctx context.Context, outcome Outcome) {
	for _, r := range rs {
		if r != nil {
			r.ReportOutcome(ctx, outcome)
		}
	}
}
