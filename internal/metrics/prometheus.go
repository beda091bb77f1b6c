package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	ticksTotal        prometheus.Counter
	tickDuration      prometheus.Histogram
	firesEmittedTotal prometheus.Counter
	retryFiresTotal   prometheus.Counter

	// Executor metrics
	firesCompletedTotal *prometheus.CounterVec
	queryDuration       prometheus.Histogram
	messagesSentTotal   prometheus.Counter
	messagesFailedTotal prometheus.Counter
	eventsInFlight      prometheus.Gauge
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initExecutorMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exportcron_scheduler_ticks_total",
		Help: "Total number of scheduler ticks processed.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "exportcron_scheduler_tick_duration_seconds",
		Help:    "Duration of each scheduler tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.firesEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exportcron_scheduler_fires_emitted_total",
		Help: "Total number of fire events emitted.",
	})
	s.retryFiresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exportcron_scheduler_retry_fires_total",
		Help: "Total number of one-shot retry fires registered.",
	})

	s.register(reg, s.ticksTotal, "exportcron_scheduler_ticks_total")
	s.register(reg, s.tickDuration, "exportcron_scheduler_tick_duration_seconds")
	s.register(reg, s.firesEmittedTotal, "exportcron_scheduler_fires_emitted_total")
	s.register(reg, s.retryFiresTotal, "exportcron_scheduler_retry_fires_total")
}

func (s *PrometheusSink) initExecutorMetrics(reg prometheus.Registerer) {
	s.firesCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exportcron_executor_fires_completed_total",
		Help: "Total number of completed fires by delivery mode and outcome.",
	}, []string{"mode", "outcome"})

	s.queryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "exportcron_executor_query_duration_seconds",
		Help:    "Query execution latency in seconds (excludes delivery).",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	s.messagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exportcron_executor_messages_sent_total",
		Help: "Total number of bus messages acknowledged.",
	})
	s.messagesFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exportcron_executor_messages_failed_total",
		Help: "Total number of bus messages that failed to publish.",
	})

	s.eventsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "exportcron_executor_events_in_flight",
		Help: "Number of fires currently being processed.",
	})

	s.register(reg, s.firesCompletedTotal, "exportcron_executor_fires_completed_total")
	s.register(reg, s.queryDuration, "exportcron_executor_query_duration_seconds")
	s.register(reg, s.messagesSentTotal, "exportcron_executor_messages_sent_total")
	s.register(reg, s.messagesFailedTotal, "exportcron_executor_messages_failed_total")
	s.register(reg, s.eventsInFlight, "exportcron_executor_events_in_flight")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) TickCompleted(duration time.Duration) {
	s.ticksTotal.Inc()
	s.tickDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) FireEmitted() {
	s.firesEmittedTotal.Inc()
}

func (s *PrometheusSink) RetryFireRegistered() {
	s.retryFiresTotal.Inc()
}

func (s *PrometheusSink) FireCompleted(mode, outcome string) {
	s.firesCompletedTotal.WithLabelValues(mode, outcome).Inc()
}

func (s *PrometheusSink) QueryDuration(d time.Duration) {
	s.queryDuration.Observe(d.Seconds())
}

func (s *PrometheusSink) MessagesPublished(sent, failed int) {
	s.messagesSentTotal.Add(float64(sent))
	s.messagesFailedTotal.Add(float64(failed))
}

func (s *PrometheusSink) EventsInFlightIncr() {
	s.eventsInFlight.Inc()
}

func (s *PrometheusSink) EventsInFlightDecr() {
	s.eventsInFlight.Dec()
}
