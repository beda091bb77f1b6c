package domain

// ScheduleMode selects how a job's fire times are described.
type ScheduleMode string

const (
	ScheduleModeClassic ScheduleMode = "classic"
	ScheduleModeCron    ScheduleMode = "cron"
)

// ScheduleSpec is the declarative schedule of a job: either classic
// time-of-day fields with an optional day-of-week set, or a cron
// expression. Days of week are numbered 0=Monday .. 6=Sunday, the
// numbering used by the configuration document.
type ScheduleSpec struct {
	Mode ScheduleMode

	DaysOfWeek []int
	Hour       *int
	Minute     *int
	Second     *int

	CronExpression string
}

// OutputTemplate describes how the output filename is rendered.
// DateFormat is a strftime-style pattern ("%Y-%m-%d"), kept in that form
// for compatibility with the configuration document.
type OutputTemplate struct {
	FilenameTemplate string
	DateFormat       string
	OffsetDays       int
	Compress         bool
}

// JobDefinition is the user-configured description of what to run, when,
// and how to deliver results. It is immutable once loaded; retries thread
// a separate RetryContext alongside it instead of mutating a counter in.
type JobDefinition struct {
	Query       string
	Connection  string
	Enabled     bool
	Description string

	Schedule ScheduleSpec

	// EndDate is the inclusive last effective date, in any of the
	// accepted formats; empty means no end date.
	EndDate string

	Output   OutputTemplate
	Delivery DeliveryConfig
}

// Name identifies the job in logs and scheduler registrations.
func (j JobDefinition) Name() string {
	return "Export " + j.Query + " on " + j.Connection
}
