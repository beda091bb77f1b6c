package trigger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/davolpi-it/export-cron/internal/domain"
)

// ErrNoSchedule is returned for a classic schedule with no time fields:
// such a job is skipped, never silently given a default schedule.
var ErrNoSchedule = errors.New("schedule has no time fields")

// Schedule computes fire times. Implemented by robfig/cron schedules.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Resolver converts declarative job schedules into concrete cron
// schedules understood by the tick engine.
type Resolver struct {
	standard cron.Parser
	seconds  cron.Parser
}

func NewResolver() *Resolver {
	return &Resolver{
		standard: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		seconds:  cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Resolve turns a ScheduleSpec into a Schedule. Cron mode parses the
// expression with the standard 5-field parser; classic mode builds an
// equivalent expression from the hour/minute/(second) fields and the
// day-of-week set.
func (r *Resolver) Resolve(spec domain.ScheduleSpec) (Schedule, error) {
	if spec.Mode == domain.ScheduleModeCron {
		if strings.TrimSpace(spec.CronExpression) == "" {
			return nil, errors.New("cron mode without cron expression")
		}
		sched, err := r.standard.Parse(spec.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", spec.CronExpression, err)
		}
		return sched, nil
	}
	return r.resolveClassic(spec)
}

func (r *Resolver) resolveClassic(spec domain.ScheduleSpec) (Schedule, error) {
	if spec.Hour == nil && spec.Minute == nil && spec.Second == nil {
		return nil, ErrNoSchedule
	}

	minute := "*"
	switch {
	case spec.Minute != nil:
		minute = strconv.Itoa(*spec.Minute)
	case spec.Hour != nil:
		// An hour with no minute fires on the hour.
		minute = "0"
	}

	hour := "*"
	if spec.Hour != nil {
		hour = strconv.Itoa(*spec.Hour)
	}

	dow := "*"
	if len(spec.DaysOfWeek) > 0 {
		parts := make([]string, 0, len(spec.DaysOfWeek))
		for _, d := range spec.DaysOfWeek {
			if d < 0 || d > 6 {
				return nil, fmt.Errorf("day of week out of range: %d", d)
			}
			// Configuration numbers days 0=Monday; cron numbers 0=Sunday.
			parts = append(parts, strconv.Itoa((d+1)%7))
		}
		dow = strings.Join(parts, ",")
	}

	if spec.Second != nil {
		expr := fmt.Sprintf("%d %s %s * * %s", *spec.Second, minute, hour, dow)
		sched, err := r.seconds.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("build classic schedule %q: %w", expr, err)
		}
		return sched, nil
	}

	expr := fmt.Sprintf("%s %s * * %s", minute, hour, dow)
	sched, err := r.standard.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("build classic schedule %q: %w", expr, err)
	}
	return sched, nil
}
