// Package memory provides an in-memory Store implementation. Safe for
// concurrent access; intended for tests, development, and embedding
// without external infrastructure.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ankit2020bhagat/JobQueueSystem/core"
	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

var _ core.Store = (*Store)(nil)

// Store is a versioned in-memory job store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// NewStore returns a new empty Store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
	}
}

// Save persists a new job.
func (m *Store) Save(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.ID]; exists {
		return errors.ErrAlreadyExists
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

// Update applies a compare-and-set on the job's version.
func (m *Store) Update(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.jobs[j.ID]
	if !ok {
		return errors.ErrNotFound
	}
	if cur.Version != j.Version {
		return errors.ErrConflict
	}

	cp := j.Clone()
	cp.Version++
	m.jobs[j.ID] = cp
	j.Version = cp.Version
	return nil
}

// FindByID retrieves a job by ID.
func (m *Store) FindByID(_ context.Context, id string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return j.Clone(), nil
}

// FindByStatus returns non-template jobs in the given status ordered by
// (priority ascending, createdAt ascending).
func (m *Store) FindByStatus(_ context.Context, status job.Status, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != status || j.IsTemplate() {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].Priority != result[k].Priority {
			return result[i].Priority < result[k].Priority
		}
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// FindDueScheduled returns non-template SCHEDULED jobs due at or before now.
func (m *Store) FindDueScheduled(_ context.Context, now time.Time) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != job.StatusScheduled || j.IsTemplate() {
			continue
		}
		if j.ScheduledTime == nil || j.ScheduledTime.After(now) {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ScheduledTime.Before(*result[k].ScheduledTime)
	})
	return result, nil
}

// FindRecurringTemplates returns all recurring templates.
func (m *Store) FindRecurringTemplates(_ context.Context) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if !j.IsTemplate() {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// FindFailed returns all FAILED jobs.
func (m *Store) FindFailed(_ context.Context) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != job.StatusFailed {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// CountByStatus returns the number of jobs per status.
func (m *Store) CountByStatus(_ context.Context) (map[job.Status]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[job.Status]int64)
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

// CountByStatusAndPriority returns per-priority counts for one status.
func (m *Store) CountByStatusAndPriority(_ context.Context, status job.Status) (map[job.Priority]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[job.Priority]int64)
	for _, j := range m.jobs {
		if j.Status != status {
			continue
		}
		counts[j.Priority]++
	}
	return counts, nil
}

// AverageProcessingTime returns the mean completedAt-startedAt over
// COMPLETED jobs.
func (m *Store) AverageProcessingTime(_ context.Context) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total time.Duration
	var n int64
	for _, j := range m.jobs {
		if j.Status != job.StatusCompleted || j.StartedAt == nil || j.CompletedAt == nil {
			continue
		}
		total += j.CompletedAt.Sub(*j.StartedAt)
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return total / time.Duration(n), nil
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }
