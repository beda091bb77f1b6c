// Package scheduler drives all fires from a single tick loop: it keeps a
// resolved snapshot of the job catalog, one-shot retry registrations,
// and internal maintenance jobs, and emits a FireEvent for every due
// time between consecutive ticks.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davolpi-it/export-cron/internal/domain"
	"github.com/davolpi-it/export-cron/internal/trigger"
)

type EventEmitter interface {
	Emit(ctx context.Context, event domain.FireEvent) error
}

// MetricsSink receives scheduler telemetry. Non-blocking, fire-and-forget.
type MetricsSink interface {
	TickCompleted(duration time.Duration)
	FireEmitted()
	RetryFireRegistered()
}

// SystemJob is an internal maintenance task with its own cron spec.
type SystemJob struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

type Config struct {
	TickInterval time.Duration
}

type entry struct {
	job      domain.JobDefinition
	schedule trigger.Schedule
}

type oneShot struct {
	job   domain.JobDefinition
	retry domain.RetryContext
	at    time.Time
}

type systemEntry struct {
	job      SystemJob
	schedule trigger.Schedule
}

type Scheduler struct {
	config   Config
	resolver *trigger.Resolver
	emitter  EventEmitter
	metrics  MetricsSink // optional, nil = disabled
	clock    func() time.Time

	mu       sync.Mutex
	entries  []entry
	oneShots []oneShot
	system   []systemEntry
	lastTick time.Time
}

func New(config Config, resolver *trigger.Resolver, emitter EventEmitter) *Scheduler {
	return &Scheduler{
		config:   config,
		resolver: resolver,
		emitter:  emitter,
		clock:    time.Now,
	}
}

// WithMetrics attaches a metrics sink to the scheduler.
func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// Reload resolves the given catalog and atomically replaces the active
// snapshot. Disabled jobs and jobs whose schedule cannot be resolved are
// skipped with a warning; one bad job never blocks the rest. Returns the
// number of registered jobs.
func (s *Scheduler) Reload(jobs []domain.JobDefinition) int {
	entries := make([]entry, 0, len(jobs))
	for _, job := range jobs {
		if !job.Enabled {
			log.Printf("scheduler: job=%s disabled, skipping", job.Name())
			continue
		}
		schedule, err := s.resolver.Resolve(job.Schedule)
		if err != nil {
			log.Printf("scheduler: job=%s not registered: %v", job.Name(), err)
			continue
		}
		entries = append(entries, entry{job: job, schedule: schedule})
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	log.Printf("scheduler: snapshot reloaded, jobs=%d of %d", len(entries), len(jobs))
	return len(entries)
}

// RegisterSystemJob adds an internal maintenance job. Must be called
// before Run; system jobs survive Reload.
func (s *Scheduler) RegisterSystemJob(job SystemJob) error {
	schedule, err := s.resolver.Resolve(domain.ScheduleSpec{
		Mode:           domain.ScheduleModeCron,
		CronExpression: job.Spec,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.system = append(s.system, systemEntry{job: job, schedule: schedule})
	s.mu.Unlock()
	log.Printf("scheduler: system job=%s registered spec=%q", job.Name, job.Spec)
	return nil
}

// ScheduleOnce registers a single re-fire of job at the given instant,
// carrying the retry context into the emitted event. One-shots are never
// coalesced: each registration fires exactly once.
func (s *Scheduler) ScheduleOnce(job domain.JobDefinition, retry domain.RetryContext, at time.Time) {
	s.mu.Lock()
	s.oneShots = append(s.oneShots, oneShot{job: job, retry: retry, at: at})
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RetryFireRegistered()
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	log.Printf("scheduler: started, tick=%s", s.config.TickInterval)
	s.mu.Lock()
	s.lastTick = s.clock()
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.processTick(ctx)
		}
	}
}

// maxIterations bounds catch-up fires per job per tick, guarding against
// a stalled loop after a long pause.
const maxIterations = 1000

func (s *Scheduler) processTick(ctx context.Context) {
	start := s.clock()
	now := start

	s.mu.Lock()
	lastTick := s.lastTick
	s.lastTick = now
	entries := s.entries
	system := s.system
	due, pending := splitDue(s.oneShots, now)
	s.oneShots = pending
	s.mu.Unlock()

	for _, en := range entries {
		t := en.schedule.Next(lastTick)
		for i := 0; i < maxIterations && !t.After(now); i++ {
			s.emitFire(ctx, en.job, domain.RetryContext{}, t, now)
			t = en.schedule.Next(t)
		}
	}

	for _, shot := range due {
		s.emitFire(ctx, shot.job, shot.retry, shot.at, now)
	}

	for _, se := range system {
		t := se.schedule.Next(lastTick)
		if !t.After(now) {
			log.Printf("scheduler: system job=%s firing", se.job.Name)
			go se.job.Run(ctx)
		}
	}

	if s.metrics != nil {
		s.metrics.TickCompleted(s.clock().Sub(start))
	}
}

func splitDue(shots []oneShot, now time.Time) (due, pending []oneShot) {
	for _, shot := range shots {
		if shot.at.After(now) {
			pending = append(pending, shot)
		} else {
			due = append(due, shot)
		}
	}
	return due, pending
}

func (s *Scheduler) emitFire(ctx context.Context, job domain.JobDefinition, retry domain.RetryContext, scheduledAt, now time.Time) {
	event := domain.FireEvent{
		FireID:      uuid.New(),
		Job:         job,
		Retry:       retry,
		ExportID:    domain.NewExportID(job.Query, now),
		ScheduledAt: scheduledAt,
		FiredAt:     now,
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		log.Printf("scheduler: job=%s emit: %v", job.Name(), err)
		return
	}
	if s.metrics != nil {
		s.metrics.FireEmitted()
	}
	log.Printf("scheduler: fired job=%s export_id=%s scheduled_at=%s",
		job.Name(), event.ExportID, scheduledAt.Format(time.RFC3339))
}
