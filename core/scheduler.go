package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

// cronParser accepts standard five-field cron expressions
// (minute, hour, day-of-month, month, day-of-week).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// ParseCron validates a five-field cron expression.
func ParseCron(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler promotes due scheduled jobs to pending and expands recurring
// templates into instances. Expansion is idempotent per occurrence: the
// template's last-fired marker is advanced by a versioned update, so of
// two racing ticks only the winner creates the instance.
type Scheduler struct {
	store   Store
	machine *StateMachine
	clock   func() time.Time

	onCreated func(ctx context.Context, j *job.Job)

	// parsed caches compiled cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule
}

// NewScheduler creates a scheduler. onCreated, if non-nil, is invoked for
// every spawned recurrence instance.
func NewScheduler(store Store, machine *StateMachine, onCreated func(ctx context.Context, j *job.Job)) *Scheduler {
	return &Scheduler{
		store:     store,
		machine:   machine,
		clock:     time.Now,
		onCreated: onCreated,
		parsed:    make(map[string]cronlib.Schedule),
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Scheduler) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Tick runs one scheduler pass: promotion then recurrence expansion.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock()
	s.promote(ctx, now)
	s.expand(ctx, now)
}

// promote moves every due SCHEDULED job to PENDING.
func (s *Scheduler) promote(ctx context.Context, now time.Time) {
	due, err := s.store.FindDueScheduled(ctx, now)
	if err != nil {
		slog.Error("Failed to fetch due scheduled jobs", "error", err)
		return
	}

	for _, j := range due {
		if _, err := s.machine.Transition(ctx, j, job.StatusPending, TransitionMeta{}); err != nil {
			if errors.IsConflict(err) {
				continue
			}
			slog.Error("Failed to promote scheduled job", "id", j.ID, "error", err)
			continue
		}
		slog.Debug("Scheduled job promoted", "id", j.ID, "type", j.Type)
	}
}

// expand spawns one instance per template whose next fire time is due.
func (s *Scheduler) expand(ctx context.Context, now time.Time) {
	templates, err := s.store.FindRecurringTemplates(ctx)
	if err != nil {
		slog.Error("Failed to fetch recurring templates", "error", err)
		return
	}

	for _, tpl := range templates {
		if tpl.Status != job.StatusScheduled {
			continue
		}
		s.expandTemplate(ctx, tpl, now)
	}
}

func (s *Scheduler) expandTemplate(ctx context.Context, tpl *job.Job, now time.Time) {
	sched, err := s.schedule(tpl.CronExpression)
	if err != nil {
		slog.Error("Invalid cron expression on template",
			"id", tpl.ID, "cron", tpl.CronExpression, "error", err)
		return
	}

	// Next fire is computed from the last-fired marker, falling back to
	// creation time for a template that has never fired.
	base := tpl.CreatedAt
	if tpl.LastFiredAt != nil {
		base = *tpl.LastFiredAt
	}
	next := sched.Next(base)
	if next.IsZero() || next.After(now) {
		return
	}

	// Advance the marker first. The version guard makes the occurrence
	// fire at most once even under racing ticks.
	advanced := tpl.Clone()
	advanced.LastFiredAt = &next
	if err := s.store.Update(ctx, advanced); err != nil {
		if errors.IsConflict(err) {
			return
		}
		slog.Error("Failed to advance template marker", "id", tpl.ID, "error", err)
		return
	}

	instance := advanced.NewInstance(next, now)
	if err := s.store.Save(ctx, instance); err != nil {
		slog.Error("Failed to save recurrence instance",
			"template_id", tpl.ID, "error", err)
		return
	}

	slog.Info("Recurring job instance created",
		"template_id", tpl.ID, "instance_id", instance.ID, "fire_at", next)

	if s.onCreated != nil {
		s.onCreated(ctx, instance)
	}
}

func (s *Scheduler) schedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
