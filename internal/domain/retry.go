package domain

import "time"

// RetryContext carries the retry state of a fire alongside the immutable
// job definition. Attempt is 0 on a first fire and strictly increases on
// each re-fire; the retry scheduler refuses to schedule once it reaches
// MaxAttempts.
type RetryContext struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

// Next returns the context for the re-fire following this one.
func (c RetryContext) Next() RetryContext {
	c.Attempt++
	return c
}

// Exhausted reports whether no further retry may be scheduled.
func (c RetryContext) Exhausted() bool {
	return c.Attempt >= c.MaxAttempts
}
