package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/davolpi-it/export-cron/internal/delivery"
	"github.com/davolpi-it/export-cron/internal/domain"
	"github.com/davolpi-it/export-cron/internal/queryrun"
	"github.com/davolpi-it/export-cron/internal/render"
)

var endDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	time.RFC3339,
}

// Execute runs the full pipeline for one fire. A fire past its end date
// produces no records at all; every other fire appends exactly one
// record after the query stage, which delivery then updates in place.
func (e *Executor) Execute(ctx context.Context, event domain.FireEvent) {
	if e.metrics != nil {
		e.metrics.EventsInFlightIncr()
		defer e.metrics.EventsInFlightDecr()
	}

	job := event.Job
	now := e.clock()

	if expired, end := e.pastEndDate(job, now); expired {
		log.Printf("executor: job=%s skipped, end date %s passed", job.Name(), end)
		return
	}

	result, queryDur, timedOut := e.runQuery(ctx, event)

	record := domain.ExecutionRecord{
		Query:      job.Query,
		Connection: job.Connection,
		Timestamp:  now.UTC(),
		ExportMode: string(job.Delivery.Mode),
		StartDate:  e.startDate(job, event.FiredAt),
	}

	switch {
	case timedOut:
		record.Status = domain.ExecutionStatusFail
		record.Error = fmt.Sprintf("Timeout query (%ds)", int(e.queryTimeout().Seconds()))
		e.history.Append(record)
		e.recordExportMetric(event, e.queryTimeout(), record.Error)
		e.finish(ctx, event, domain.ExecutionStatusFail)
		e.retrier.ScheduleRetry(event, record.Error)
		return
	case !result.Success:
		record.Status = domain.ExecutionStatusFail
		record.Error = result.ErrorMessage
		e.history.Append(record)
		e.recordExportMetric(event, queryDur, record.Error)
		e.finish(ctx, event, domain.ExecutionStatusFail)
		e.retrier.ScheduleRetry(event, record.Error)
		return
	}

	dur := queryDur.Seconds()
	record.Status = domain.ExecutionStatusSuccess
	record.DurationSec = &dur
	record.RowCount = result.RowCount
	handle := e.history.Append(record)
	e.recordExportMetric(event, queryDur, "")

	if e.metrics != nil {
		e.metrics.QueryDuration(queryDur)
	}
	log.Printf("executor: job=%s export_id=%s query done rows=%d duration=%.2fs",
		job.Name(), event.ExportID, result.RowCount, dur)

	e.deliver(ctx, event, result, handle)
}

// recordExportMetric persists one "scheduler" telemetry entry for the
// fire's query stage.
func (e *Executor) recordExportMetric(event domain.FireEvent, queryDur time.Duration, errMsg string) {
	if e.exports == nil {
		return
	}
	entry := domain.MetricEntry{
		Timestamp: time.Now().UTC(),
		LatencyMs: float64(queryDur.Milliseconds()),
		Operation: "scheduler",
		Source:    event.Job.Query,
		Error:     errMsg,
	}
	if err := e.exports.Record(entry); err != nil {
		log.Printf("executor: record export metric: %v", err)
	}
}

// runQuery invokes the runner in its own goroutine and waits up to the
// query timeout. On timeout the goroutine is abandoned, not cancelled;
// its eventual result is discarded.
func (e *Executor) runQuery(ctx context.Context, event domain.FireEvent) (result *queryrun.Result, dur time.Duration, timedOut bool) {
	done := make(chan *queryrun.Result, 1)
	start := e.clock()
	go func() {
		done <- e.runner.Execute(ctx, queryrun.Request{
			Query:      event.Job.Query,
			Connection: event.Job.Connection,
		})
	}()

	timer := time.NewTimer(e.queryTimeout())
	defer timer.Stop()

	select {
	case res := <-done:
		return res, e.clock().Sub(start), false
	case <-timer.C:
		log.Printf("executor: job=%s export_id=%s query abandoned after %s",
			event.Job.Name(), event.ExportID, e.queryTimeout())
		return nil, 0, true
	}
}

func (e *Executor) deliver(ctx context.Context, event domain.FireEvent, result *queryrun.Result, handle int) {
	job := event.Job
	switch job.Delivery.Mode {
	case domain.DeliveryModeMessaging:
		e.deliverBus(ctx, event, result, handle)
	default:
		e.deliverFile(ctx, event, result, handle)
	}
}

func (e *Executor) deliverFile(ctx context.Context, event domain.FireEvent, result *queryrun.Result, handle int) {
	job := event.Job
	outputDir := e.config.ExportDir
	var emailCfg *domain.EmailDelivery
	switch job.Delivery.Mode {
	case domain.DeliveryModeEmail:
		emailCfg = job.Delivery.Email
		if emailCfg.OutputDir != "" {
			outputDir = emailCfg.OutputDir
		}
	default:
		if fs := job.Delivery.Filesystem; fs != nil && fs.OutputDir != "" {
			outputDir = fs.OutputDir
		}
	}

	filename := e.filename(job, event.FiredAt)
	artifactPath, err := e.files.Deliver(job, outputDir, filename, result.Columns, result.Rows)
	if err != nil {
		e.history.Update(handle, func(rec *domain.ExecutionRecord) {
			rec.Status = domain.ExecutionStatusFail
			rec.Error = err.Error()
			rec.DurationSec = nil
		})
		e.finish(ctx, event, domain.ExecutionStatusFail)
		if delivery.IsFatal(err) {
			log.Printf("executor: job=%s export_id=%s delivery failed, not retried: %v", job.Name(), event.ExportID, err)
			return
		}
		e.retrier.ScheduleRetry(event, err.Error())
		return
	}

	if emailCfg != nil && e.email != nil {
		e.email.Deliver(ctx, job, *emailCfg, artifactPath, event.FiredAt)
	}
	log.Printf("executor: job=%s export_id=%s delivered file=%s", job.Name(), event.ExportID, artifactPath)
	e.finish(ctx, event, domain.ExecutionStatusSuccess)
}

func (e *Executor) deliverBus(ctx context.Context, event domain.FireEvent, result *queryrun.Result, handle int) {
	job := event.Job
	cfg := job.Delivery.Messaging
	if e.busch == nil || cfg == nil {
		e.history.Update(handle, func(rec *domain.ExecutionRecord) {
			rec.Status = domain.ExecutionStatusFail
			rec.Error = "messaging delivery not configured"
			rec.DurationSec = nil
		})
		e.finish(ctx, event, domain.ExecutionStatusFail)
		return
	}

	batch, err := e.busch.Deliver(ctx, job, *cfg, result.Rows, event.ExportID, event.FiredAt)

	e.history.Update(handle, func(rec *domain.ExecutionRecord) {
		rec.Topic = cfg.Topic
		if batch != nil {
			sent, failed := batch.Succeeded, batch.Failed
			pubDur := batch.Duration.Seconds()
			rec.MessagesSent = &sent
			rec.MessagesFailed = &failed
			rec.PublishDurationSec = &pubDur
		}
		if err != nil {
			rec.Status = domain.ExecutionStatusFail
			rec.Error = err.Error()
			rec.DurationSec = nil
		}
	})

	if e.metrics != nil && batch != nil {
		e.metrics.MessagesPublished(batch.Succeeded, batch.Failed)
	}

	if err != nil {
		e.finish(ctx, event, domain.ExecutionStatusFail)
		e.retrier.ScheduleRetry(event, err.Error())
		return
	}
	log.Printf("executor: job=%s export_id=%s published topic=%s sent=%d failed=%d",
		job.Name(), event.ExportID, cfg.Topic, batch.Succeeded, batch.Failed)
	e.finish(ctx, event, domain.ExecutionStatusSuccess)
}

// finish fans the fire outcome out to the optional sinks.
func (e *Executor) finish(ctx context.Context, event domain.FireEvent, status domain.ExecutionStatus) {
	if e.metrics != nil {
		e.metrics.FireCompleted(string(event.Job.Delivery.Mode), string(status))
	}
	if e.analytics != nil {
		e.analytics.RecordOutcome(ctx, event.Job.Query, e.clock(), string(status))
	}
}

// pastEndDate reports whether today is strictly past the job's end date.
// Unparsable values are warned about and treated as no end date.
func (e *Executor) pastEndDate(job domain.JobDefinition, now time.Time) (bool, string) {
	if job.EndDate == "" {
		return false, ""
	}
	end, ok := parseEndDate(job.EndDate)
	if !ok {
		log.Printf("executor: job=%s unparsable end_date %q, ignoring", job.Name(), job.EndDate)
		return false, ""
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.After(end), job.EndDate
}

func parseEndDate(value string) (time.Time, bool) {
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func (e *Executor) filename(job domain.JobDefinition, at time.Time) string {
	return render.Filename(job.Query, job.Output, at)
}

func (e *Executor) startDate(job domain.JobDefinition, at time.Time) string {
	return render.Tokens(job.Query, job.Output, at)["date"]
}

func (e *Executor) queryTimeout() time.Duration {
	if e.config.QueryTimeout <= 0 {
		return 300 * time.Second
	}
	return e.config.QueryTimeout
}
