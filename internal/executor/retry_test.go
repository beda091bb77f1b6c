package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
	"github.com/davolpi-it/export-cron/internal/testutil"
)

type mockFireScheduler struct {
	mu      sync.Mutex
	calls   int
	lastJob domain.JobDefinition
	lastCtx domain.RetryContext
	lastAt  time.Time
}

func (m *mockFireScheduler) ScheduleOnce(job domain.JobDefinition, retry domain.RetryContext, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastJob = job
	m.lastCtx = retry
	m.lastAt = at
}

func TestScheduleRetry_Disabled(t *testing.T) {
	hist := &mockHistory{}
	sched := &mockFireScheduler{}
	r := NewRetrier(RetryPolicy{Enabled: false}, hist, sched)

	r.ScheduleRetry(fireFor(fsJob()), "Timeout query (300s)")

	if sched.calls != 0 {
		t.Errorf("disabled retrier scheduled a fire")
	}
	if len(hist.all()) != 0 {
		t.Errorf("disabled retrier wrote a record")
	}
}

func TestScheduleRetry_FirstFailure(t *testing.T) {
	hist := &mockHistory{}
	sched := &mockFireScheduler{}
	r := NewRetrier(RetryPolicy{Enabled: true, Delay: 30 * time.Minute, MaxAttempts: 3}, hist, sched)
	now := time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC)
	r.clock = testutil.NewFakeClock(now).Now

	r.ScheduleRetry(fireFor(fsJob()), "Timeout query (300s)")

	records := hist.all()
	if len(records) != 1 {
		t.Fatalf("history has %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Status != domain.ExecutionStatusRetryScheduled {
		t.Errorf("status = %s, want retry_scheduled", rec.Status)
	}
	if rec.RetryAttempt == nil || *rec.RetryAttempt != 1 {
		t.Errorf("retry_attempt = %v, want 1", rec.RetryAttempt)
	}
	if rec.RetryDelayMin == nil || *rec.RetryDelayMin != 30 {
		t.Errorf("retry_delay_min = %v, want 30", rec.RetryDelayMin)
	}
	if rec.Error != "Timeout query (300s)" {
		t.Errorf("error = %q", rec.Error)
	}

	if sched.calls != 1 {
		t.Fatalf("scheduler invoked %d times, want 1", sched.calls)
	}
	if sched.lastCtx.Attempt != 1 || sched.lastCtx.MaxAttempts != 3 {
		t.Errorf("retry context = %+v, want attempt 1 of 3", sched.lastCtx)
	}
	wantAt := now.Add(30 * time.Minute)
	if !sched.lastAt.Equal(wantAt) {
		t.Errorf("re-fire at %v, want %v", sched.lastAt, wantAt)
	}
}

func TestScheduleRetry_Exhausted(t *testing.T) {
	hist := &mockHistory{}
	sched := &mockFireScheduler{}
	r := NewRetrier(RetryPolicy{Enabled: true, Delay: time.Minute, MaxAttempts: 3}, hist, sched)

	event := fireFor(fsJob())
	event.Retry = domain.RetryContext{Attempt: 3, MaxAttempts: 3, Delay: time.Minute}
	r.ScheduleRetry(event, "still failing")

	if sched.calls != 0 {
		t.Errorf("exhausted retry chain scheduled another fire")
	}
	if len(hist.all()) != 0 {
		t.Errorf("exhausted retry chain wrote a record")
	}
}

func TestScheduleRetry_ChainsAttempts(t *testing.T) {
	hist := &mockHistory{}
	sched := &mockFireScheduler{}
	r := NewRetrier(RetryPolicy{Enabled: true, Delay: time.Minute, MaxAttempts: 3}, hist, sched)

	event := fireFor(fsJob())
	event.Retry = domain.RetryContext{Attempt: 1, MaxAttempts: 3, Delay: time.Minute}
	r.ScheduleRetry(event, "fail again")

	if sched.calls != 1 {
		t.Fatalf("scheduler invoked %d times, want 1", sched.calls)
	}
	if sched.lastCtx.Attempt != 2 {
		t.Errorf("attempt = %d, want 2", sched.lastCtx.Attempt)
	}
}
