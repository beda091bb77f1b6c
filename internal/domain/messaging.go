package domain

import "time"

// MaxBatchErrors bounds the error list carried by a BatchResult.
const MaxBatchErrors = 100

// BatchResult is the outcome of one publish attempt against the bus.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Errors    []string
	Duration  time.Duration
}

// SuccessRate returns succeeded/total as a percentage. An empty batch
// counts as fully successful.
func (r BatchResult) SuccessRate() float64 {
	if r.Total == 0 {
		return 100.0
	}
	return float64(r.Succeeded) / float64(r.Total) * 100.0
}

// AddError appends err keeping the list bounded at MaxBatchErrors.
func (r *BatchResult) AddError(err string) {
	if len(r.Errors) < MaxBatchErrors {
		r.Errors = append(r.Errors, err)
	}
}

// MetricEntry is one messaging operation's telemetry, persisted in the
// publish-metrics document separately from execution history.
type MetricEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	Topic          string    `json:"topic"`
	MessagesSent   int       `json:"messages_sent"`
	MessagesFailed int       `json:"messages_failed"`
	BytesSent      int       `json:"bytes_sent"`
	LatencyMs      float64   `json:"latency_ms"`
	Operation      string    `json:"operation_type"`
	Source         string    `json:"source,omitempty"`
	Error          string    `json:"error_message,omitempty"`
}
