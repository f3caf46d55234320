package core

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

func newTestDispatcher(store Store, registry Registry, publisher *mockPublisher, poolSize int) *Dispatcher {
	sm := NewStateMachine(store)
	retry := NewRetryPolicy(store, sm, publisher, time.Second, 2.0, 60*time.Second)
	return NewDispatcher(store, sm, registry, retry, poolSize, 100)
}

// startPool runs the dispatcher's workers for the duration of the test.
func startPool(t *testing.T, d *Dispatcher) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Pool().Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatcher_ClaimsInPriorityOrder(t *testing.T) {
	store := newMockStore()
	registry := newMockRegistry()
	require.NoError(t, registry.Register("EMAIL", func(context.Context, []byte) error { return nil }))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	low := mustJob(t, "EMAIL", job.PriorityLow, base)
	medium := mustJob(t, "EMAIL", job.PriorityMedium, base.Add(time.Second))
	high := mustJob(t, "EMAIL", job.PriorityHigh, base.Add(2*time.Second))
	for _, j := range []*job.Job{low, medium, high} {
		store.put(j)
	}

	// Pool of one: each tick claims exactly the front of the queue.
	d := newTestDispatcher(store, registry, newMockPublisher(), 1)

	d.Dispatch(context.Background())
	assert.Equal(t, job.StatusProcessing, store.get(high.ID).Status)
	assert.Equal(t, job.StatusPending, store.get(medium.ID).Status)
	assert.Equal(t, job.StatusPending, store.get(low.ID).Status)
	assert.Equal(t, d.WorkerID(), store.get(high.ID).WorkerID)
}

func TestDispatcher_OlderJobWinsWithinPriority(t *testing.T) {
	store := newMockStore()
	registry := newMockRegistry()
	require.NoError(t, registry.Register("EMAIL", func(context.Context, []byte) error { return nil }))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	newer := mustJob(t, "EMAIL", job.PriorityHigh, base.Add(time.Minute))
	older := mustJob(t, "EMAIL", job.PriorityHigh, base)
	store.put(newer)
	store.put(older)

	d := newTestDispatcher(store, registry, newMockPublisher(), 1)
	d.Dispatch(context.Background())

	assert.Equal(t, job.StatusProcessing, store.get(older.ID).Status)
	assert.Equal(t, job.StatusPending, store.get(newer.ID).Status)
}

func TestDispatcher_SaturatedPoolLeavesJobsPending(t *testing.T) {
	store := newMockStore()
	registry := newMockRegistry()
	require.NoError(t, registry.Register("EMAIL", func(context.Context, []byte) error { return nil }))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		store.put(mustJob(t, "EMAIL", job.PriorityHigh, base.Add(time.Duration(i)*time.Second)))
	}

	d := newTestDispatcher(store, registry, newMockPublisher(), 2)
	d.Dispatch(context.Background())

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[job.StatusProcessing])
	assert.Equal(t, int64(1), counts[job.StatusPending])
	assert.Equal(t, 2, d.Pool().Active())
}

func TestDispatcher_UnknownTypeFailsWithoutWorkerSlot(t *testing.T) {
	store := newMockStore()
	d := newTestDispatcher(store, newMockRegistry(), newMockPublisher(), 2)

	j := mustJob(t, "NO_SUCH_TYPE", job.PriorityHigh, time.Now())
	store.put(j)

	d.Dispatch(context.Background())

	stored := store.get(j.ID)
	assert.Equal(t, job.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.ErrorMessage, "unknown job type")
	assert.Equal(t, 0, d.Pool().Active())
}

func TestDispatcher_ExecutesHandlerAndCompletes(t *testing.T) {
	store := newMockStore()
	registry := newMockRegistry()

	var got atomic.Value
	require.NoError(t, registry.Register("EMAIL", func(_ context.Context, payload []byte) error {
		got.Store(string(payload))
		return nil
	}))

	j, err := job.New("EMAIL", []byte(`{"to":"ops@example.com"}`), job.PriorityHigh, 5, time.Now())
	require.NoError(t, err)
	store.put(j)

	d := newTestDispatcher(store, registry, newMockPublisher(), 2)
	startPool(t, d)

	d.Dispatch(context.Background())

	require.Eventually(t, func() bool {
		return store.get(j.ID).Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	stored := store.get(j.ID)
	assert.Equal(t, `{"to":"ops@example.com"}`, got.Load())
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)
	assert.Empty(t, stored.WorkerID)
}

func TestDispatcher_HandlerErrorMarksFailed(t *testing.T) {
	store := newMockStore()
	registry := newMockRegistry()
	require.NoError(t, registry.Register("EMAIL", func(context.Context, []byte) error {
		return stderrors.New("smtp unreachable")
	}))

	j := mustJob(t, "EMAIL", job.PriorityHigh, time.Now())
	store.put(j)

	d := newTestDispatcher(store, registry, newMockPublisher(), 2)
	startPool(t, d)

	d.Dispatch(context.Background())

	require.Eventually(t, func() bool {
		return store.get(j.ID).Status == job.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored := store.get(j.ID)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.ErrorMessage, "smtp unreachable")
}

func TestDispatcher_PanicInHandlerIsAFailure(t *testing.T) {
	store := newMockStore()
	registry := newMockRegistry()
	require.NoError(t, registry.Register("EMAIL", func(context.Context, []byte) error {
		panic("nil map write")
	}))

	j := mustJob(t, "EMAIL", job.PriorityHigh, time.Now())
	store.put(j)

	d := newTestDispatcher(store, registry, newMockPublisher(), 2)
	startPool(t, d)

	d.Dispatch(context.Background())

	require.Eventually(t, func() bool {
		return store.get(j.ID).Status == job.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, store.get(j.ID).ErrorMessage, "panic: nil map write")
}

func TestDispatcher_ExhaustedJobDeadLettersAndPublishes(t *testing.T) {
	store := newMockStore()
	registry := newMockRegistry()
	require.NoError(t, registry.Register("EMAIL", func(context.Context, []byte) error {
		return stderrors.New("permanent")
	}))

	j, err := job.New("EMAIL", []byte(`{}`), job.PriorityHigh, 0, time.Now())
	require.NoError(t, err)
	store.put(j)

	publisher := newMockPublisher()
	d := newTestDispatcher(store, registry, publisher, 2)
	startPool(t, d)

	d.Dispatch(context.Background())

	require.Eventually(t, func() bool {
		return store.get(j.ID).Status == job.StatusDeadLetter
	}, 2*time.Second, 10*time.Millisecond)

	dead := publisher.topicJobs(TopicDeadLetter)
	require.Len(t, dead, 1)
	assert.Equal(t, j.ID, dead[0].ID)
}

// staleClaimStore serves pending candidates with an outdated version so
// every claim loses its compare-and-set.
type staleClaimStore struct {
	*mockStore
}

func (s *staleClaimStore) FindByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error) {
	candidates, err := s.mockStore.FindByStatus(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	for _, j := range candidates {
		j.Version--
	}
	return candidates, nil
}

func TestDispatcher_LostClaimReleasesWorkerSlot(t *testing.T) {
	inner := newMockStore()
	store := &staleClaimStore{mockStore: inner}
	registry := newMockRegistry()
	require.NoError(t, registry.Register("EMAIL", func(context.Context, []byte) error { return nil }))

	j := mustJob(t, "EMAIL", job.PriorityHigh, time.Now())
	inner.put(j)

	d := newTestDispatcher(store, registry, newMockPublisher(), 2)
	d.Dispatch(context.Background())

	assert.Equal(t, job.StatusPending, inner.get(j.ID).Status)
	assert.Equal(t, 0, d.Pool().Active())
}
