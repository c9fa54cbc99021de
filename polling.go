package stepwise

import "time"

// PollBuilder provides a fluent way to construct PollPolicy values for
// Runtime.Poll.
type PollBuilder struct {
	policy PollPolicy
}

// Polling creates a PollBuilder allowing maxAttempts fetches at the
// default interval.
//
// maxAttempts <= 0 is treated as 1.
func Polling(maxAttempts int) PollBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	p := PollPolicy{MaxAttempts: maxAttempts}
	return PollBuilder{policy: p.Normalize()}
}

// Every sets the delay between fetches.
//
//	Polling(12).Every(5 * time.Second)
func (b PollBuilder) Every(interval time.Duration) PollBuilder {
	p := b.policy
	if interval > 0 {
		p.Interval = interval
	}
	return PollBuilder{policy: p}
}

// Within sets MaxAttempts to total divided by the interval, so the run
// gives up roughly total after it started.
//
//	Polling(1).Every(5 * time.Second).Within(time.Minute) // 12 attempts
func (b PollBuilder) Within(total time.Duration) PollBuilder {
	p := b.policy
	n := int(total / p.Interval)
	if n < 1 {
		n = 1
	}
	p.MaxAttempts = n
	return PollBuilder{policy: p}
}

// Policy returns the underlying PollPolicy.
func (b PollBuilder) Policy() PollPolicy {
	return b.policy
}
