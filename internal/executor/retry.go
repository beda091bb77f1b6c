package executor

import (
	"log"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
)

// FireScheduler registers a one-shot re-fire of a job. Implemented by
// the scheduler; the retry context rides along to the new fire event.
type FireScheduler interface {
	ScheduleOnce(job domain.JobDefinition, retry domain.RetryContext, at time.Time)
}

// RetryPolicy is the global retry configuration.
type RetryPolicy struct {
	Enabled     bool
	Delay       time.Duration
	MaxAttempts int
}

// Retrier appends a retry_scheduled record and registers the re-fire.
// Disabled policy makes it a no-op; an exhausted context produces
// neither a record nor a re-fire.
type Retrier struct {
	policy    RetryPolicy
	history   History
	scheduler FireScheduler

	clock func() time.Time
}

func NewRetrier(policy RetryPolicy, history History, scheduler FireScheduler) *Retrier {
	return &Retrier{policy: policy, history: history, scheduler: scheduler, clock: time.Now}
}

func (r *Retrier) ScheduleRetry(event domain.FireEvent, cause string) {
	if !r.policy.Enabled {
		return
	}

	retry := event.Retry
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = r.policy.MaxAttempts
		retry.Delay = r.policy.Delay
	}
	if retry.Exhausted() {
		log.Printf("executor: job=%s retry attempts exhausted (%d), giving up", event.Job.Name(), retry.Attempt)
		return
	}

	next := retry.Next()
	now := r.clock()
	fireAt := now.Add(retry.Delay)

	attempt := next.Attempt
	delayMin := int(retry.Delay.Minutes())
	r.history.Append(domain.ExecutionRecord{
		Query:         event.Job.Query,
		Connection:    event.Job.Connection,
		Timestamp:     now.UTC(),
		Status:        domain.ExecutionStatusRetryScheduled,
		Error:         cause,
		ExportMode:    string(event.Job.Delivery.Mode),
		RetryAttempt:  &attempt,
		RetryDelayMin: &delayMin,
	})

	r.scheduler.ScheduleOnce(event.Job, next, fireAt)
	log.Printf("executor: job=%s retry attempt=%d/%d scheduled at %s",
		event.Job.Name(), next.Attempt, next.MaxAttempts, fireAt.Format(time.RFC3339))
}
