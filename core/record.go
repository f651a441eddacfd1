package core

import "time"

// Record is the per-extension registration record. It is owned exclusively by
// the registry or coordinator that created it and mutated only during
// register/initialize/execute/dispose.
type Record struct {
	Descriptor  Descriptor
	State       State
	Enabled     bool
	Initialized bool

	RegisteredAt   time.Time
	InitializedAt  time.Time
	LastActivityAt time.Time

	ExecutionCount int64
	ErrorCount     int64
	TotalDuration  time.Duration
}

// NewRecord creates a record for a freshly registered extension.
func NewRecord(desc Descriptor, enabled bool) *Record {
	return &Record{
		Descriptor:   desc,
		State:        StateRegistered,
		Enabled:      enabled,
		RegisteredAt: time.Now().UTC(),
	}
}

// Observe folds one execution outcome into the counters.
func (r *Record) Observe(dur time.Duration, failed bool) {
	r.ExecutionCount++
	if failed {
		r.ErrorCount++
	}
	r.TotalDuration += dur
	r.LastActivityAt = time.Now().UTC()
}

// AverageDuration returns the mean execution duration, or zero before the
// first execution.
func (r *Record) AverageDuration() time.Duration {
	if r.ExecutionCount == 0 {
		return 0
	}
	return r.TotalDuration / time.Duration(r.ExecutionCount)
}

// Snapshot returns a copy safe to hand to callers.
func (r *Record) Snapshot() Record { return *r }
