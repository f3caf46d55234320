package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

func TestWorkerPool_ReserveBoundsCapacity(t *testing.T) {
	wp := NewWorkerPool(2, func(context.Context, *job.Job) {})

	assert.True(t, wp.Reserve())
	assert.True(t, wp.Reserve())
	assert.False(t, wp.Reserve(), "pool of two holds two slots")
	assert.Equal(t, 2, wp.Active())

	wp.Release()
	assert.True(t, wp.Reserve())
}

func TestWorkerPool_ExecutesSubmittedJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	wp := NewWorkerPool(3, func(_ context.Context, j *job.Job) {
		mu.Lock()
		seen[j.ID] = true
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = wp.Start(ctx)
	}()

	jobs := make([]*job.Job, 3)
	for i := range jobs {
		jobs[i] = mustJob(t, "EMAIL", job.PriorityHigh, time.Now())
		require.True(t, wp.Reserve())
		wp.Submit(jobs[i])
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return wp.Active() == 0 },
		time.Second, 10*time.Millisecond, "slots release after execution")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not drain after cancel")
	}
}

func TestWorkerPool_MinimumSizeIsOne(t *testing.T) {
	wp := NewWorkerPool(0, func(context.Context, *job.Job) {})
	assert.True(t, wp.Reserve())
	assert.False(t, wp.Reserve())
}
