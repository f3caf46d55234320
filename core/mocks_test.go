package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

// Mock implementations for testing

// mockStore is a versioned in-memory store with error injection.
type mockStore struct {
	mu          sync.Mutex
	jobs        map[string]*job.Job
	saveError   error
	updateError error
	findError   error
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[string]*job.Job)}
}

func (m *mockStore) Save(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveError != nil {
		return m.saveError
	}
	if _, exists := m.jobs[j.ID]; exists {
		return errors.ErrAlreadyExists
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

func (m *mockStore) Update(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateError != nil {
		return m.updateError
	}
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

func (m *mockStore) FindByID(_ context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findError != nil {
		return nil, m.findError
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return j.Clone(), nil
}

func (m *mockStore) FindByStatus(_ context.Context, status job.Status, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findError != nil {
		return nil, m.findError
	}
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

func (m *mockStore) FindDueScheduled(_ context.Context, now time.Time) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

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

func (m *mockStore) FindRecurringTemplates(_ context.Context) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.IsTemplate() {
			result = append(result, j.Clone())
		}
	}
	return result, nil
}

func (m *mockStore) FindFailed(_ context.Context) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status == job.StatusFailed {
			result = append(result, j.Clone())
		}
	}
	return result, nil
}

func (m *mockStore) CountByStatus(_ context.Context) (map[job.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[job.Status]int64)
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (m *mockStore) CountByStatusAndPriority(_ context.Context, status job.Status) (map[job.Priority]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[job.Priority]int64)
	for _, j := range m.jobs {
		if j.Status == status {
			counts[j.Priority]++
		}
	}
	return counts, nil
}

func (m *mockStore) AverageProcessingTime(_ context.Context) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total time.Duration
	var n int64
	for _, j := range m.jobs {
		if j.Status == job.StatusCompleted && j.StartedAt != nil && j.CompletedAt != nil {
			total += j.CompletedAt.Sub(*j.StartedAt)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return total / time.Duration(n), nil
}

func (m *mockStore) Ping(_ context.Context) error { return nil }
func (m *mockStore) Close() error                 { return nil }

// get returns the stored record without copying, for assertions.
func (m *mockStore) get(id string) *job.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

// put seeds a record directly.
func (m *mockStore) put(j *job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j.Clone()
}

// mockPublisher records published jobs per topic.
type mockPublisher struct {
	mu           sync.Mutex
	published    map[string][]*job.Job
	publishError error
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{published: make(map[string][]*job.Job)}
}

func (m *mockPublisher) Publish(_ context.Context, topic string, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.published[topic] = append(m.published[topic], j.Clone())
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) topicJobs(topic string) []*job.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*job.Job(nil), m.published[topic]...)
}

// mockBroadcaster records broadcast payloads per channel.
type mockBroadcaster struct {
	mu             sync.Mutex
	broadcasts     map[string][]any
	broadcastError error
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{broadcasts: make(map[string][]any)}
}

func (m *mockBroadcaster) Broadcast(_ context.Context, channel string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.broadcastError != nil {
		return m.broadcastError
	}
	m.broadcasts[channel] = append(m.broadcasts[channel], payload)
	return nil
}

func (m *mockBroadcaster) Close() error { return nil }

func (m *mockBroadcaster) channelPayloads(channel string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.broadcasts[channel]...)
}

// mockRegistry is a minimal handler registry.
type mockRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{handlers: make(map[string]HandlerFunc)}
}

func (m *mockRegistry) Register(jobType string, handler HandlerFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[jobType] = handler
	return nil
}

func (m *mockRegistry) Resolve(jobType string) (HandlerFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[jobType]
	return h, ok
}

// recordingListener captures transition events.
type recordingListener struct {
	mu     sync.Mutex
	events []TransitionEvent
}

func (l *recordingListener) OnTransition(ev TransitionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *recordingListener) all() []TransitionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TransitionEvent(nil), l.events...)
}

// mustJob builds a pending job for tests.
func mustJob(t interface{ Fatalf(string, ...any) }, jobType string, priority job.Priority, createdAt time.Time) *job.Job {
	j, err := job.New(jobType, []byte(`{}`), priority, 5, createdAt)
	if err != nil {
		t.Fatalf("failed to build job: %v", err)
	}
	return j
}
