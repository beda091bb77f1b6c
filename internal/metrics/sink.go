package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Scheduler metrics
	TickCompleted(duration time.Duration)
	FireEmitted()
	RetryFireRegistered()

	// Executor metrics
	FireCompleted(mode, outcome string)
	QueryDuration(d time.Duration)
	MessagesPublished(sent, failed int)
	EventsInFlightIncr()
	EventsInFlightDecr()
}
