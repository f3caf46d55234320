package core

import (
	"context"
	"sync"
	"time"

	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

// MetricsSnapshot is a point-in-time view of queue health.
type MetricsSnapshot struct {
	TotalJobs      int64 `json:"total_jobs"`
	PendingJobs    int64 `json:"pending_jobs"`
	ScheduledJobs  int64 `json:"scheduled_jobs"`
	ProcessingJobs int64 `json:"processing_jobs"`
	CompletedJobs  int64 `json:"completed_jobs"`
	FailedJobs     int64 `json:"failed_jobs"`
	DeadLetterJobs int64 `json:"dead_letter_jobs"`
	CancelledJobs  int64 `json:"cancelled_jobs"`

	HighPriorityPending   int64 `json:"high_priority_pending"`
	MediumPriorityPending int64 `json:"medium_priority_pending"`
	LowPriorityPending    int64 `json:"low_priority_pending"`

	// SuccessRate and FailureRate are percentages over
	// completed + failed + deadLetter; both zero when that sum is zero.
	SuccessRate float64 `json:"success_rate"`
	FailureRate float64 `json:"failure_rate"`

	AverageProcessingTime time.Duration `json:"average_processing_time"`

	JobsProcessedLastHour int64 `json:"jobs_processed_last_hour"`
	JobsFailedLastHour    int64 `json:"jobs_failed_last_hour"`
}

// minuteBucket accumulates one minute of completions and failures.
type minuteBucket struct {
	minute    int64 // unix minute the bucket currently represents
	processed int64
	failed    int64
}

// MetricsAggregator maintains running counts over every state transition.
// It is fed synchronously by the state machine; no table scan is needed to
// serve a snapshot. Hourly figures use a 60-slot minute ring, the average
// processing time is a running mean.
type MetricsAggregator struct {
	mu sync.Mutex

	byStatus   map[job.Status]int64
	byPriority map[job.Status]map[job.Priority]int64

	completed int64   // completions observed, for the running mean
	meanNanos float64 // running mean of completedAt-startedAt

	buckets [60]minuteBucket

	clock func() time.Time
}

// NewMetricsAggregator creates an empty aggregator.
func NewMetricsAggregator() *MetricsAggregator {
	return &MetricsAggregator{
		byStatus:   make(map[job.Status]int64),
		byPriority: make(map[job.Status]map[job.Priority]int64),
		clock:      time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (m *MetricsAggregator) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// OnCreated records a newly persisted job.
func (m *MetricsAggregator) OnCreated(j *job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(j.Status, j.Priority, 1)
}

// OnTransition implements TransitionListener.
func (m *MetricsAggregator) OnTransition(ev TransitionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.add(ev.From, ev.Job.Priority, -1)
	m.add(ev.To, ev.Job.Priority, 1)

	switch ev.To {
	case job.StatusCompleted:
		if ev.Job.StartedAt != nil && ev.Job.CompletedAt != nil {
			d := ev.Job.CompletedAt.Sub(*ev.Job.StartedAt)
			m.completed++
			m.meanNanos += (float64(d) - m.meanNanos) / float64(m.completed)
		}
		m.bucket(ev.At).processed++
	case job.StatusFailed:
		m.bucket(ev.At).failed++
	}
}

func (m *MetricsAggregator) add(status job.Status, priority job.Priority, delta int64) {
	m.byStatus[status] += delta
	byPrio, ok := m.byPriority[status]
	if !ok {
		byPrio = make(map[job.Priority]int64)
		m.byPriority[status] = byPrio
	}
	byPrio[priority] += delta
}

// bucket returns the ring slot for t, resetting it when it holds a stale
// minute.
func (m *MetricsAggregator) bucket(t time.Time) *minuteBucket {
	minute := t.Unix() / 60
	b := &m.buckets[minute%60]
	if b.minute != minute {
		*b = minuteBucket{minute: minute}
	}
	return b
}

// Snapshot returns the current metrics.
func (m *MetricsAggregator) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		PendingJobs:    m.byStatus[job.StatusPending],
		ScheduledJobs:  m.byStatus[job.StatusScheduled],
		ProcessingJobs: m.byStatus[job.StatusProcessing],
		CompletedJobs:  m.byStatus[job.StatusCompleted],
		FailedJobs:     m.byStatus[job.StatusFailed],
		DeadLetterJobs: m.byStatus[job.StatusDeadLetter],
		CancelledJobs:  m.byStatus[job.StatusCancelled],
	}
	for _, n := range m.byStatus {
		snap.TotalJobs += n
	}

	if pending, ok := m.byPriority[job.StatusPending]; ok {
		snap.HighPriorityPending = pending[job.PriorityHigh]
		snap.MediumPriorityPending = pending[job.PriorityMedium]
		snap.LowPriorityPending = pending[job.PriorityLow]
	}

	processed := snap.CompletedJobs + snap.FailedJobs + snap.DeadLetterJobs
	if processed > 0 {
		snap.SuccessRate = float64(snap.CompletedJobs) * 100.0 / float64(processed)
		snap.FailureRate = float64(snap.FailedJobs+snap.DeadLetterJobs) * 100.0 / float64(processed)
	}

	snap.AverageProcessingTime = time.Duration(m.meanNanos)

	// Sum only ring slots still inside the rolling hour.
	nowMinute := m.clock().Unix() / 60
	for i := range m.buckets {
		b := &m.buckets[i]
		if b.minute > nowMinute-60 && b.minute <= nowMinute {
			snap.JobsProcessedLastHour += b.processed
			snap.JobsFailedLastHour += b.failed
		}
	}

	return snap
}

// Reconcile replaces the running counters with a recompute from the
// store. Used as a periodic consistency check and to seed the aggregator
// when the engine starts over a non-empty store.
func (m *MetricsAggregator) Reconcile(ctx context.Context, store Store) error {
	byStatus, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	pendingByPriority, err := store.CountByStatusAndPriority(ctx, job.StatusPending)
	if err != nil {
		return err
	}
	avg, err := store.AverageProcessingTime(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.byStatus = make(map[job.Status]int64, len(byStatus))
	for status, n := range byStatus {
		m.byStatus[status] = n
	}
	m.byPriority[job.StatusPending] = make(map[job.Priority]int64, len(pendingByPriority))
	for priority, n := range pendingByPriority {
		m.byPriority[job.StatusPending][priority] = n
	}
	m.completed = m.byStatus[job.StatusCompleted]
	m.meanNanos = float64(avg)
	return nil
}
