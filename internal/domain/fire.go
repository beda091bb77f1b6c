package domain

import (
	"time"

	"github.com/google/uuid"
)

// FireEvent is emitted by the scheduler when a job is due. One event is
// one fire; retried fires carry a non-zero RetryContext.Attempt.
type FireEvent struct {
	FireID uuid.UUID
	Job    JobDefinition
	Retry  RetryContext

	// ExportID correlates all log lines and telemetry of one fire,
	// "<query>-<yyyymmddhhmmss>".
	ExportID string

	ScheduledAt time.Time // intended fire time (UTC)
	FiredAt     time.Time // actual emission time
}

// NewExportID builds the fire correlation id for a job fired at t.
func NewExportID(query string, t time.Time) string {
	return query + "-" + t.UTC().Format("20060102150405")
}
