package core

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

func newTestRetry(store *mockStore, publisher *mockPublisher) (*RetryPolicy, *StateMachine) {
	sm := NewStateMachine(store)
	policy := NewRetryPolicy(store, sm, publisher, time.Second, 2.0, 60*time.Second)
	return policy, sm
}

func TestRetryPolicy_DelaySequence(t *testing.T) {
	policy, _ := newTestRetry(newMockStore(), newMockPublisher())

	expected := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		32000 * time.Millisecond,
		60000 * time.Millisecond,
		60000 * time.Millisecond,
	}

	for i, want := range expected {
		assert.Equal(t, want, policy.Delay(i), "delay(%d)", i)
	}
}

func TestRetryPolicy_DelayNonDecreasing(t *testing.T) {
	policy, _ := newTestRetry(newMockStore(), newMockPublisher())

	prev := time.Duration(0)
	for i := 0; i < 50; i++ {
		d := policy.Delay(i)
		assert.GreaterOrEqual(t, d, prev, "delay(%d)", i)
		assert.LessOrEqual(t, d, 60*time.Second)
		prev = d
	}
}

func TestRetryPolicy_DeadLetterOnSixthFailure(t *testing.T) {
	store := newMockStore()
	publisher := newMockPublisher()
	policy, sm := newTestRetry(store, publisher)

	j := mustJob(t, "EMAIL", job.PriorityHigh, time.Now())
	j.MaxRetries = 5
	store.put(j)

	cur := store.get(j.ID).Clone()
	for attempt := 1; attempt <= 6; attempt++ {
		claimed, err := sm.Transition(context.Background(), cur, job.StatusProcessing, TransitionMeta{WorkerID: "w"})
		require.NoError(t, err)

		failed, err := sm.Transition(context.Background(), claimed, job.StatusFailed, TransitionMeta{Error: "boom"})
		require.NoError(t, err)
		require.Equal(t, attempt, failed.RetryCount)

		require.NoError(t, policy.OnFailure(context.Background(), failed))

		stored := store.get(j.ID)
		if attempt < 6 {
			assert.Equal(t, job.StatusFailed, stored.Status, "attempt %d must stay retryable", attempt)
			// Re-queue for the next attempt.
			pending, err := sm.Transition(context.Background(), stored.Clone(), job.StatusPending, TransitionMeta{})
			require.NoError(t, err)
			cur = pending
		} else {
			assert.Equal(t, job.StatusDeadLetter, stored.Status, "6th failure dead-letters")
		}
	}

	dead := publisher.topicJobs(TopicDeadLetter)
	require.Len(t, dead, 1)
	assert.Equal(t, j.ID, dead[0].ID)
	assert.Equal(t, 6, dead[0].RetryCount)
}

func TestRetryPolicy_EligibilityUsesBackoffWindow(t *testing.T) {
	store := newMockStore()
	policy, _ := newTestRetry(store, newMockPublisher())

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	j := mustJob(t, "EMAIL", job.PriorityHigh, started)
	j.Status = job.StatusFailed
	j.RetryCount = 3 // next delay is 4s (initial * 2^2)
	j.StartedAt = &started

	assert.False(t, policy.Eligible(j, started.Add(3*time.Second)))
	assert.True(t, policy.Eligible(j, started.Add(4*time.Second)))
	assert.True(t, policy.Eligible(j, started.Add(time.Minute)))
}

func TestRetryPolicy_CheckRetriesRequeuesEligible(t *testing.T) {
	store := newMockStore()
	publisher := newMockPublisher()
	policy, _ := newTestRetry(store, publisher)

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := started.Add(10 * time.Second)
	policy.SetClock(func() time.Time { return now })

	eligible := mustJob(t, "EMAIL", job.PriorityHigh, started)
	eligible.Status = job.StatusFailed
	eligible.RetryCount = 1 // delay(0) = 1s, long elapsed
	eligible.StartedAt = &started
	eligible.ErrorMessage = "boom"
	store.put(eligible)

	tooSoon := mustJob(t, "EMAIL", job.PriorityHigh, started)
	tooSoon.Status = job.StatusFailed
	tooSoon.RetryCount = 5 // delay(4) = 16s, not yet elapsed
	tooSoon.StartedAt = &started
	store.put(tooSoon)

	policy.CheckRetries(context.Background())

	assert.Equal(t, job.StatusPending, store.get(eligible.ID).Status)
	assert.Empty(t, store.get(eligible.ID).ErrorMessage)
	assert.Equal(t, job.StatusFailed, store.get(tooSoon.ID).Status)
}

// staleRetryStore serves retry candidates with an outdated version, as if
// another actor updated the record between the fetch and the transition.
type staleRetryStore struct {
	*mockStore
}

func (s *staleRetryStore) FindFailed(ctx context.Context) ([]*job.Job, error) {
	candidates, err := s.mockStore.FindFailed(ctx)
	if err != nil {
		return nil, err
	}
	for _, j := range candidates {
		j.Version--
	}
	return candidates, nil
}

func TestRetryPolicy_CheckRetriesSkipsConflicts(t *testing.T) {
	inner := newMockStore()
	store := &staleRetryStore{mockStore: inner}
	sm := NewStateMachine(store)
	policy := NewRetryPolicy(store, sm, newMockPublisher(), time.Second, 2.0, 60*time.Second)

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	policy.SetClock(func() time.Time { return started.Add(time.Hour) })

	j := mustJob(t, "EMAIL", job.PriorityHigh, started)
	j.Status = job.StatusFailed
	j.RetryCount = 1
	j.StartedAt = &started
	inner.put(j)

	// Must not panic or error; the conflict is recovered by skipping.
	policy.CheckRetries(context.Background())
	assert.Equal(t, job.StatusFailed, inner.get(j.ID).Status)
}

// outageStore fails a fixed number of updates before recovering.
type outageStore struct {
	*mockStore
	failures int
}

func (s *outageStore) Update(ctx context.Context, j *job.Job) error {
	if s.failures > 0 {
		s.failures--
		return stderrors.New("store unavailable")
	}
	return s.mockStore.Update(ctx, j)
}

func TestRetryPolicy_CheckRetriesRecoversStrandedDeadLetter(t *testing.T) {
	inner := newMockStore()
	store := &outageStore{mockStore: inner, failures: 1}
	sm := NewStateMachine(store)
	publisher := newMockPublisher()
	policy := NewRetryPolicy(store, sm, publisher, time.Second, 2.0, 60*time.Second)

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	policy.SetClock(func() time.Time { return started.Add(24 * time.Hour) })

	j := mustJob(t, "EMAIL", job.PriorityHigh, started)
	j.Status = job.StatusFailed
	j.RetryCount = 6
	j.MaxRetries = 5
	j.StartedAt = &started
	inner.put(j)

	// The store outage swallows the first dead-letter routing.
	require.Error(t, policy.OnFailure(context.Background(), inner.get(j.ID).Clone()))
	assert.Equal(t, job.StatusFailed, inner.get(j.ID).Status)

	// The next tick finds the exhausted job and re-routes it.
	policy.CheckRetries(context.Background())

	assert.Equal(t, job.StatusDeadLetter, inner.get(j.ID).Status)
	dead := publisher.topicJobs(TopicDeadLetter)
	require.Len(t, dead, 1)
	assert.Equal(t, j.ID, dead[0].ID)
}

func TestRetryPolicy_CheckRetriesNeverRequeuesExhausted(t *testing.T) {
	store := newMockStore()
	policy, _ := newTestRetry(store, newMockPublisher())

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	policy.SetClock(func() time.Time { return started.Add(24 * time.Hour) })

	j := mustJob(t, "EMAIL", job.PriorityHigh, started)
	j.Status = job.StatusFailed
	j.RetryCount = 6
	j.MaxRetries = 5
	j.StartedAt = &started
	store.put(j)

	policy.CheckRetries(context.Background())

	stored := store.get(j.ID)
	assert.Equal(t, job.StatusDeadLetter, stored.Status, "exhausted jobs dead-letter, never re-queue")
	assert.Equal(t, 6, stored.RetryCount)
}
