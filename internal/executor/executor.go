// Package executor consumes fire events and runs the per-fire pipeline:
// window check, query, delivery, history record, retry scheduling.
package executor

import (
	"context"
	"log"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
	"github.com/davolpi-it/export-cron/internal/queryrun"
)

// Runner executes the job's query; see queryrun.Runner.
type Runner interface {
	Execute(ctx context.Context, req queryrun.Request) *queryrun.Result
}

// FileChannel materializes the artifact and returns its final path.
type FileChannel interface {
	Deliver(job domain.JobDefinition, outputDir, filename string, columns []string, rows []map[string]any) (string, error)
}

// EmailChannel sends the artifact as an attachment, best-effort.
type EmailChannel interface {
	Deliver(ctx context.Context, job domain.JobDefinition, cfg domain.EmailDelivery, artifactPath string, at time.Time)
}

// BusChannel publishes rows to the message bus.
type BusChannel interface {
	Deliver(ctx context.Context, job domain.JobDefinition, cfg domain.MessagingDelivery, rows []map[string]any, exportID string, at time.Time) (*domain.BatchResult, error)
}

// History records execution outcomes. Append returns a handle that
// Update targets, so concurrent fires each mutate their own record.
type History interface {
	Append(rec domain.ExecutionRecord) int
	Update(handle int, fn func(*domain.ExecutionRecord))
}

// ExportMetrics persists one telemetry entry per export, next to the
// messaging channel's batch entries.
type ExportMetrics interface {
	Record(entry domain.MetricEntry) error
}

// RetryScheduler asks for a later re-fire of a failed job.
type RetryScheduler interface {
	ScheduleRetry(event domain.FireEvent, cause string)
}

// AnalyticsSink records per-job outcome counters. Best-effort.
type AnalyticsSink interface {
	RecordOutcome(ctx context.Context, job string, day time.Time, outcome string)
}

// MetricsSink receives executor telemetry. All methods must be
// non-blocking and fire-and-forget.
type MetricsSink interface {
	FireCompleted(mode, outcome string)
	QueryDuration(d time.Duration)
	MessagesPublished(sent, failed int)
	EventsInFlightIncr()
	EventsInFlightDecr()
}

// Config carries the executor's tunables.
type Config struct {
	// QueryTimeout bounds the wait on the query goroutine.
	QueryTimeout time.Duration
	// ExportDir is the default artifact root when a job names no
	// output directory.
	ExportDir string
}

type Executor struct {
	config  Config
	runner  Runner
	files   FileChannel
	email   EmailChannel // optional, nil = email jobs keep the artifact only
	busch   BusChannel   // optional, nil = messaging jobs fail delivery
	history History
	retrier RetryScheduler

	analytics AnalyticsSink // optional, nil = disabled
	metrics   MetricsSink   // optional, nil = disabled
	exports   ExportMetrics // optional, nil = disabled

	clock func() time.Time
}

func New(config Config, runner Runner, files FileChannel, history History, retrier RetryScheduler) *Executor {
	return &Executor{
		config:  config,
		runner:  runner,
		files:   files,
		history: history,
		retrier: retrier,
		clock:   time.Now,
	}
}

func (e *Executor) WithEmail(ch EmailChannel) *Executor {
	e.email = ch
	return e
}

func (e *Executor) WithBus(ch BusChannel) *Executor {
	e.busch = ch
	return e
}

func (e *Executor) WithAnalytics(sink AnalyticsSink) *Executor {
	e.analytics = sink
	return e
}

// WithMetrics attaches a metrics sink to the executor.
func (e *Executor) WithMetrics(sink MetricsSink) *Executor {
	e.metrics = sink
	return e
}

// WithExportMetrics attaches the per-export telemetry store.
func (e *Executor) WithExportMetrics(rec ExportMetrics) *Executor {
	e.exports = rec
	return e
}

// Run processes fire events from the channel until the context is
// cancelled, then drains the remaining buffered events with a timeout.
// Start one goroutine per worker.
func (e *Executor) Run(ctx context.Context, ch <-chan domain.FireEvent) {
	for {
		select {
		case <-ctx.Done():
			e.drain(ch)
			return
		case event := <-ch:
			e.Execute(ctx, event)
		}
	}
}

// DrainTimeout bounds how long buffered fires are processed at shutdown.
const DrainTimeout = 30 * time.Second

func (e *Executor) drain(ch <-chan domain.FireEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("executor: drain timeout, processed %d fires", count)
			}
			return
		case event, ok := <-ch:
			if !ok {
				log.Printf("executor: drain complete, processed %d fires", count)
				return
			}
			e.Execute(drainCtx, event)
			count++
		default:
			if count > 0 {
				log.Printf("executor: drain complete, processed %d fires", count)
			}
			return
		}
	}
}
