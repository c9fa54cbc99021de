package api

import "time"

// PollStatus is the state of an asynchronous backend job.
type PollStatus string

const (
	PollPending      PollStatus = "pending"
	PollProcessing   PollStatus = "processing"
	PollCompleted    PollStatus = "completed"
	PollNotAvailable PollStatus = "not_available"
	PollError        PollStatus = "error"
)

// Terminal reports whether polling stops at this status.
func (s PollStatus) Terminal() bool {
	return s == PollCompleted || s == PollNotAvailable || s == PollError
}

// PollPolicy bounds a poll run.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy polls every 5 s for at most 12 attempts (60 s ceiling).
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 5 * time.Second, MaxAttempts: 12}
}

// Normalize fills zero fields from DefaultPollPolicy.
func (p PollPolicy) Normalize() PollPolicy {
	def := DefaultPollPolicy()
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// PollableResource is the view of a polled job. Attempts never exceeds
// MaxAttempts.
type PollableResource struct {
	ID          string
	Interval    time.Duration
	Attempts    int
	MaxAttempts int
	Status      PollStatus
	Payload     any
	Err         error
}
