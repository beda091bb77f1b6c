package domain

import "time"

type ExecutionStatus string

const (
	ExecutionStatusSuccess        ExecutionStatus = "success"
	ExecutionStatusFail           ExecutionStatus = "fail"
	ExecutionStatusRetryScheduled ExecutionStatus = "retry_scheduled"
)

// ExecutionRecord is one entry of the execution history document: one
// record per non-skipped fire, including retries. A fire's record may
// be updated in place with that fire's delivery outcome; no fire ever
// touches another fire's record.
type ExecutionRecord struct {
	Query      string          `json:"query"`
	Connection string          `json:"connection"`
	Timestamp  time.Time       `json:"timestamp"`
	Status     ExecutionStatus `json:"status"`

	// DurationSec is set on success only.
	DurationSec *float64 `json:"duration_sec"`
	RowCount    int      `json:"row_count"`
	Error       string   `json:"error,omitempty"`

	// StartDate is the {date} token rendered at fire time, kept so the
	// history shows which business date an export covered.
	StartDate string `json:"start_date,omitempty"`

	ExportMode string `json:"export_mode,omitempty"`

	// Messaging outcome fields.
	Topic              string   `json:"topic,omitempty"`
	MessagesSent       *int     `json:"messages_sent,omitempty"`
	MessagesFailed     *int     `json:"messages_failed,omitempty"`
	PublishDurationSec *float64 `json:"publish_duration_sec,omitempty"`

	// Retry bookkeeping, set on retry_scheduled records.
	RetryAttempt  *int `json:"retry_attempt,omitempty"`
	RetryDelayMin *int `json:"retry_delay_min,omitempty"`
}
