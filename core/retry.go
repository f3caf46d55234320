package core

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

// RetryPolicy computes exponential backoff delays and routes exhausted
// jobs to the dead letter sink. Eligibility is re-evaluated on a periodic
// tick; no loop or worker ever sleeps for the backoff duration.
type RetryPolicy struct {
	store     Store
	machine   *StateMachine
	publisher Publisher
	clock     func() time.Time

	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
}

// NewRetryPolicy creates a retry policy.
func NewRetryPolicy(store Store, machine *StateMachine, publisher Publisher, initial time.Duration, multiplier float64, max time.Duration) *RetryPolicy {
	return &RetryPolicy{
		store:        store,
		machine:      machine,
		publisher:    publisher,
		clock:        time.Now,
		initialDelay: initial,
		multiplier:   multiplier,
		maxDelay:     max,
	}
}

// SetClock overrides the time source. Intended for tests.
func (p *RetryPolicy) SetClock(clock func() time.Time) {
	p.clock = clock
}

// Delay returns min(initialDelay * multiplier^retryCount, maxDelay).
// It is non-decreasing in retryCount until the cap, then constant.
func (p *RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := time.Duration(float64(p.initialDelay) * math.Pow(p.multiplier, float64(retryCount)))
	if d > p.maxDelay || d <= 0 {
		return p.maxDelay
	}
	return d
}

// OnFailure decides the fate of a job that just transitioned to FAILED.
// The FAILED transition has already incremented RetryCount, so the budget
// is exhausted once RetryCount exceeds MaxRetries: a job with maxRetries=5
// dead-letters on its 6th failure. Jobs still in budget stay FAILED until
// the retry check finds them eligible.
func (p *RetryPolicy) OnFailure(ctx context.Context, j *job.Job) error {
	if j.RetryCount <= j.MaxRetries {
		slog.Debug("Job scheduled for retry",
			"id", j.ID, "retry_count", j.RetryCount, "delay", p.Delay(j.RetryCount-1))
		return nil
	}

	dead, err := p.machine.Transition(ctx, j, job.StatusDeadLetter, TransitionMeta{})
	if err != nil {
		return err
	}

	slog.Warn("Job moved to dead letter queue",
		"id", dead.ID, "type", dead.Type, "retry_count", dead.RetryCount)

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, TopicDeadLetter, dead); err != nil {
			slog.Error("Failed to publish dead letter job", "id", dead.ID, "error", err)
		}
	}
	return nil
}

// CheckRetries is one retry-eligibility tick: every FAILED job whose
// backoff window has elapsed since its last attempt moves back to PENDING
// for re-claim. Exhausted jobs are re-routed to the dead letter queue, so
// a transient store failure during the original routing is recovered on
// the next tick. Lost transition races are skipped.
func (p *RetryPolicy) CheckRetries(ctx context.Context) {
	candidates, err := p.store.FindFailed(ctx)
	if err != nil {
		slog.Error("Failed to fetch retry candidates", "error", err)
		return
	}

	now := p.clock()
	for _, j := range candidates {
		if j.RetryCount > j.MaxRetries {
			if err := p.OnFailure(ctx, j); err != nil && !errors.IsConflict(err) {
				slog.Error("Failed to dead-letter job", "id", j.ID, "error", err)
			}
			continue
		}
		if !p.Eligible(j, now) {
			continue
		}
		if _, err := p.machine.Transition(ctx, j, job.StatusPending, TransitionMeta{}); err != nil {
			if errors.IsConflict(err) {
				continue
			}
			slog.Error("Failed to requeue job for retry", "id", j.ID, "error", err)
			continue
		}
		slog.Info("Job requeued for retry", "id", j.ID, "attempt", j.RetryCount+1)
	}
}

// Eligible reports whether the backoff delay for the job's last failure
// has elapsed. The delay for attempt n uses retryCount-1, so the first
// retry waits initialDelay.
func (p *RetryPolicy) Eligible(j *job.Job, now time.Time) bool {
	if j.Status != job.StatusFailed {
		return false
	}
	if j.StartedAt == nil {
		return true
	}
	return now.Sub(*j.StartedAt) >= p.Delay(j.RetryCount-1)
}
