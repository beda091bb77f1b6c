// Package analytics keeps best-effort per-job outcome counters in Redis
// for operational dashboards. A down Redis never affects a fire.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Retention bounds how long a day's counters stay queryable.
const Retention = 40 * 24 * time.Hour

type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// RecordOutcome increments the per-job, per-day counter for the given
// outcome. Errors are logged and swallowed.
func (s *RedisSink) RecordOutcome(ctx context.Context, job string, day time.Time, outcome string) {
	key := buildKey(job, day, outcome)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, Retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: record %s: %v", key, err)
	}
}

func buildKey(job string, day time.Time, outcome string) string {
	return fmt.Sprintf("export:j:%s:d:%s:%s", job, day.UTC().Format("20060102"), outcome)
}
