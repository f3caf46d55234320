package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

// Dispatcher claims pending jobs in priority order and executes their
// handlers on a bounded worker pool. Claims are atomic PENDING->PROCESSING
// transitions: of concurrent claimants exactly one wins, losers skip the
// record. A saturated pool leaves candidates pending for the next tick;
// the dispatch loop itself never blocks on pool capacity.
type Dispatcher struct {
	store     Store
	machine   *StateMachine
	registry  Registry
	retry     *RetryPolicy
	pool      *WorkerPool
	workerID  string
	batchSize int
}

// NewDispatcher creates a dispatcher with its own worker pool.
func NewDispatcher(store Store, machine *StateMachine, registry Registry, retry *RetryPolicy, poolSize, batchSize int) *Dispatcher {
	hostname, _ := os.Hostname()

	d := &Dispatcher{
		store:     store,
		machine:   machine,
		registry:  registry,
		retry:     retry,
		workerID:  fmt.Sprintf("%s:%d-%s", hostname, os.Getpid(), uuid.NewString()[:8]),
		batchSize: batchSize,
	}
	d.pool = NewWorkerPool(poolSize, d.execute)
	return d
}

// Pool returns the dispatcher's worker pool for lifecycle management.
func (d *Dispatcher) Pool() *WorkerPool {
	return d.pool
}

// WorkerID returns the identifier stamped on claimed jobs.
func (d *Dispatcher) WorkerID() string {
	return d.workerID
}

// Dispatch is one poll tick: fetch pending candidates ordered by
// (priority, createdAt), claim as many as the pool has capacity for, and
// submit them for execution.
func (d *Dispatcher) Dispatch(ctx context.Context) {
	candidates, err := d.store.FindByStatus(ctx, job.StatusPending, d.batchSize)
	if err != nil {
		slog.Error("Failed to fetch pending jobs", "error", err)
		return
	}

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return
		}

		// Unknown job types fail without consuming a worker slot.
		if _, ok := d.registry.Resolve(candidate.Type); !ok {
			d.failUnknownType(ctx, candidate)
			continue
		}

		if !d.pool.Reserve() {
			break
		}

		claimed, err := d.machine.Transition(ctx, candidate, job.StatusProcessing, TransitionMeta{WorkerID: d.workerID})
		if err != nil {
			d.pool.Release()
			if errors.IsConflict(err) {
				// Lost the claim race; the record is someone else's now.
				continue
			}
			slog.Error("Failed to claim job", "id", candidate.ID, "error", err)
			continue
		}

		d.pool.Submit(claimed)
	}
}

// execute runs the handler for one claimed job and feeds the outcome back
// through the state machine and retry policy.
func (d *Dispatcher) execute(ctx context.Context, j *job.Job) {
	handler, ok := d.registry.Resolve(j.Type)
	if !ok {
		// Handler unregistered between claim and execution.
		d.fail(ctx, j, errors.NewExecutionError(j.ID, j.Type, errors.ErrUnknownJobType))
		return
	}

	if err := d.runHandler(ctx, handler, j); err != nil {
		d.fail(ctx, j, err)
		return
	}

	if _, err := d.machine.Transition(ctx, j, job.StatusCompleted, TransitionMeta{}); err != nil {
		slog.Error("Failed to mark job completed", "id", j.ID, "error", err)
		return
	}
	slog.Debug("Job completed", "id", j.ID, "type", j.Type)
}

// runHandler invokes the handler with panic recovery. Any uncaught fault
// is an execution failure, never a crashed worker.
func (d *Dispatcher) runHandler(ctx context.Context, handler HandlerFunc, j *job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewExecutionError(j.ID, j.Type, fmt.Errorf("panic: %v", r))
		}
	}()

	if execErr := handler(ctx, j.Payload); execErr != nil {
		return errors.NewExecutionError(j.ID, j.Type, execErr)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, j *job.Job, execErr error) {
	slog.Error("Job failed", "id", j.ID, "type", j.Type, "error", execErr)

	failed, err := d.machine.Transition(ctx, j, job.StatusFailed, TransitionMeta{Error: execErr.Error()})
	if err != nil {
		slog.Error("Failed to mark job failed", "id", j.ID, "error", err)
		return
	}

	if err := d.retry.OnFailure(ctx, failed); err != nil && !errors.IsConflict(err) {
		slog.Error("Retry policy error", "id", failed.ID, "error", err)
	}
}

// failUnknownType moves a pending job with no registered handler straight
// to FAILED and lets the retry policy decide its fate.
func (d *Dispatcher) failUnknownType(ctx context.Context, candidate *job.Job) {
	claimed, err := d.machine.Transition(ctx, candidate, job.StatusProcessing, TransitionMeta{WorkerID: d.workerID})
	if err != nil {
		if !errors.IsConflict(err) {
			slog.Error("Failed to claim job", "id", candidate.ID, "error", err)
		}
		return
	}
	d.fail(ctx, claimed, errors.NewExecutionError(claimed.ID, claimed.Type, errors.ErrUnknownJobType))
}
