package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davolpi-it/export-cron/internal/bus"
	"github.com/davolpi-it/export-cron/internal/domain"
)

// flushEvery is the chunk cadence for intermediate flushes.
const flushEvery = 10

// MessagingOptions tunes the publish retry wrapper. Zero values take the
// documented defaults.
type MessagingOptions struct {
	MaxRetries        int
	RetryBackoff      time.Duration
	SuccessThreshold  float64
	RandomKeyFallback bool
}

func (o MessagingOptions) withDefaults() MessagingOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 100 * time.Millisecond
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = 95.0
	}
	return o
}

// MetricsRecorder persists one publish metric entry per delivery.
type MetricsRecorder interface {
	Record(entry domain.MetricEntry) error
}

// Messaging publishes query rows to a bus topic in bounded chunks.
type Messaging struct {
	factory bus.Factory
	metrics MetricsRecorder // optional, nil = disabled
	opts    MessagingOptions

	// sleep is swapped in tests to skip retry backoff.
	sleep func(time.Duration)
}

func NewMessaging(factory bus.Factory, opts MessagingOptions) *Messaging {
	return &Messaging{factory: factory, opts: opts.withDefaults(), sleep: time.Sleep}
}

func (m *Messaging) WithMetrics(rec MetricsRecorder) *Messaging {
	m.metrics = rec
	return m
}

// Deliver publishes every row and returns the final batch result. The
// returned error is non-nil when the final success rate is below the
// threshold; the executor treats it as a retryable failure.
func (m *Messaging) Deliver(ctx context.Context, job domain.JobDefinition, cfg domain.MessagingDelivery, rows []map[string]any, exportID string, at time.Time) (*domain.BatchResult, error) {
	producer, err := m.factory.Producer(cfg.Connection)
	if err != nil {
		return nil, err
	}

	messages, result := m.buildMessages(job, cfg, rows, exportID, at)
	final := m.publishWithRetry(ctx, producer, cfg, messages, result)

	if m.metrics != nil {
		var bytes int
		for _, msg := range messages {
			bytes += len(msg.Value)
		}
		entry := domain.MetricEntry{
			Timestamp:      time.Now().UTC(),
			Topic:          cfg.Topic,
			MessagesSent:   final.Succeeded,
			MessagesFailed: final.Failed,
			BytesSent:      bytes,
			LatencyMs:      float64(final.Duration.Milliseconds()),
			Operation:      "batch",
			Source:         job.Query,
		}
		if len(final.Errors) > 0 {
			entry.Error = final.Errors[0]
		}
		if err := m.metrics.Record(entry); err != nil {
			log.Printf("kafka: record metric entry: %v", err)
		}
	}

	if rate := final.SuccessRate(); rate < m.opts.SuccessThreshold {
		return final, fmt.Errorf("publish to %s: success rate %.1f%% below threshold %.1f%% (%d/%d sent)",
			cfg.Topic, rate, m.opts.SuccessThreshold, final.Succeeded, final.Total)
	}
	return final, nil
}

// buildMessages serializes rows into bus messages. Rows whose key field
// is missing are either keyed randomly or counted failed up front,
// depending on the fallback setting; they never abort the batch.
func (m *Messaging) buildMessages(job domain.JobDefinition, cfg domain.MessagingDelivery, rows []map[string]any, exportID string, at time.Time) ([]bus.Message, *domain.BatchResult) {
	result := &domain.BatchResult{Total: len(rows)}
	messages := make([]bus.Message, 0, len(rows))

	for i, row := range rows {
		key, ok := messageKey(row, cfg.KeyField)
		if !ok {
			if !m.opts.RandomKeyFallback {
				result.Failed++
				result.AddError(fmt.Sprintf("row %d: key field %q missing", i, cfg.KeyField))
				continue
			}
			key = uuid.NewString()
		}

		payload := row
		if cfg.IncludeMetadata {
			payload = make(map[string]any, len(row)+1)
			for k, v := range row {
				payload[k] = v
			}
			payload["_metadata"] = map[string]any{
				"source_query":      job.Query,
				"source_connection": job.Connection,
				"export_timestamp":  at.UTC().Format(time.RFC3339),
				"export_id":         exportID,
			}
		}

		value, err := json.Marshal(payload)
		if err != nil {
			result.Failed++
			result.AddError(fmt.Sprintf("row %d: serialize: %v", i, err))
			continue
		}
		messages = append(messages, bus.Message{Topic: cfg.Topic, Key: []byte(key), Value: value})
	}
	return messages, result
}

// publishWithRetry runs publish attempts until one reaches the success
// threshold or attempts run out. Counts from build-stage failures carry
// into every attempt's result.
func (m *Messaging) publishWithRetry(ctx context.Context, producer bus.Producer, cfg domain.MessagingDelivery, messages []bus.Message, base *domain.BatchResult) *domain.BatchResult {
	var last *domain.BatchResult

	for attempt := 1; attempt <= m.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			backoff := m.opts.RetryBackoff * (1 << (attempt - 2))
			log.Printf("kafka: topic=%s publish retry attempt=%d backoff=%s", cfg.Topic, attempt, backoff)
			m.sleep(backoff)
		}

		result := m.publish(ctx, producer, cfg, messages, base)
		last = result
		if result.SuccessRate() >= m.opts.SuccessThreshold {
			return result
		}
		log.Printf("kafka: topic=%s attempt=%d rate=%.1f%% sent=%d failed=%d",
			cfg.Topic, attempt, result.SuccessRate(), result.Succeeded, result.Failed)
	}

	if last == nil {
		// Every attempt failed before producing a result.
		last = &domain.BatchResult{Total: base.Total, Failed: base.Total}
		last.AddError("all publish attempts failed")
	}
	return last
}

// publish sends the whole batch in chunks. Within a chunk every send is
// issued before any is awaited; the producer is flushed every tenth
// chunk, after the last one, and once more before returning.
func (m *Messaging) publish(ctx context.Context, producer bus.Producer, cfg domain.MessagingDelivery, messages []bus.Message, base *domain.BatchResult) *domain.BatchResult {
	start := time.Now()
	result := &domain.BatchResult{Total: base.Total, Failed: base.Failed}
	result.Errors = append(result.Errors, base.Errors...)

	chunkSize := cfg.BatchSize
	if chunkSize <= 0 {
		chunkSize = 100
	}

	var mu sync.Mutex
	chunks := 0
	for offset := 0; offset < len(messages); offset += chunkSize {
		end := offset + chunkSize
		if end > len(messages) {
			end = len(messages)
		}
		chunk := messages[offset:end]
		chunks++

		var wg sync.WaitGroup
		wg.Add(len(chunk))
		for _, msg := range chunk {
			producer.Send(ctx, msg, func(err error) {
				defer wg.Done()
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed++
					result.AddError(err.Error())
				} else {
					result.Succeeded++
				}
			})
		}
		wg.Wait()

		if chunks%flushEvery == 0 || end == len(messages) {
			if err := producer.Flush(ctx); err != nil {
				log.Printf("kafka: topic=%s intermediate flush: %v", cfg.Topic, err)
			}
		}
	}

	if err := producer.Flush(ctx); err != nil {
		log.Printf("kafka: topic=%s final flush: %v", cfg.Topic, err)
	}

	result.Duration = time.Since(start)
	return result
}

// messageKey coerces the key field to text. Nil or absent values report
// no key.
func messageKey(row map[string]any, field string) (string, bool) {
	v, ok := row[field]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return "", false
		}
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}
