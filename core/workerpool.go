package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

// WorkerPool executes claimed jobs on a fixed set of worker goroutines.
// Capacity is reserved before a job is claimed so the dispatcher never
// blocks waiting for a free worker: when the pool is saturated, Reserve
// fails and the candidate is left pending for the next tick.
type WorkerPool struct {
	size     int
	run      func(ctx context.Context, j *job.Job)
	jobChan  chan *job.Job
	inflight int32
	wg       sync.WaitGroup
}

// NewWorkerPool creates a pool of size workers executing run.
func NewWorkerPool(size int, run func(ctx context.Context, j *job.Job)) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		run:     run,
		jobChan: make(chan *job.Job, size),
	}
}

// Start launches the workers and blocks until ctx is cancelled and all
// workers have drained.
func (wp *WorkerPool) Start(ctx context.Context) error {
	slog.Info("Starting worker pool", "size", wp.size)

	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go func() {
			defer wp.wg.Done()
			wp.work(ctx)
		}()
	}

	wp.wg.Wait()
	slog.Info("Worker pool stopped")
	return nil
}

func (wp *WorkerPool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-wp.jobChan:
			if !ok {
				return
			}
			wp.run(ctx, j)
			atomic.AddInt32(&wp.inflight, -1)
		}
	}
}

// Reserve claims one execution slot. Returns false when the pool is
// saturated. Every successful Reserve must be followed by Submit or Release.
func (wp *WorkerPool) Reserve() bool {
	for {
		n := atomic.LoadInt32(&wp.inflight)
		if int(n) >= wp.size {
			return false
		}
		if atomic.CompareAndSwapInt32(&wp.inflight, n, n+1) {
			return true
		}
	}
}

// Release returns an unused reserved slot.
func (wp *WorkerPool) Release() {
	atomic.AddInt32(&wp.inflight, -1)
}

// Submit hands a job to a worker. The buffered channel holds one entry per
// worker, so with a reserved slot the send never blocks.
func (wp *WorkerPool) Submit(j *job.Job) {
	wp.jobChan <- j
}

// Active returns the number of reserved or executing slots.
func (wp *WorkerPool) Active() int {
	return int(atomic.LoadInt32(&wp.inflight))
}
