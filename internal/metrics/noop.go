package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickCompleted(duration time.Duration) {}
func (n *NoopSink) FireEmitted()                         {}
func (n *NoopSink) RetryFireRegistered()                 {}
func (n *NoopSink) FireCompleted(mode, outcome string)   {}
func (n *NoopSink) QueryDuration(d time.Duration)        {}
func (n *NoopSink) MessagesPublished(sent, failed int)   {}
func (n *NoopSink) EventsInFlightIncr()                  {}
func (n *NoopSink) EventsInFlightDecr()                  {}
