package core

import (
	"context"
	"sync"
	"time"

	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

// TransitionMeta carries per-edge inputs into a transition.
type TransitionMeta struct {
	// WorkerID identifies the claimant on PENDING -> PROCESSING.
	WorkerID string
	// Error carries the failure detail on PROCESSING -> FAILED.
	Error string
}

// allowedEdges enumerates the legal status transitions. CANCELLED is
// reachable from every non-terminal status and is handled separately.
var allowedEdges = map[job.Status][]job.Status{
	job.StatusPending:    {job.StatusProcessing},
	job.StatusScheduled:  {job.StatusPending},
	job.StatusProcessing: {job.StatusCompleted, job.StatusFailed},
	job.StatusFailed:     {job.StatusPending, job.StatusDeadLetter},
}

func edgeAllowed(from, to job.Status) bool {
	if to == job.StatusCancelled {
		return !from.IsTerminal()
	}
	for _, t := range allowedEdges[from] {
		if t == to {
			return true
		}
	}
	return false
}

// StateMachine validates and applies status transitions. Each transition
// is a compare-and-set against the stored record: of two concurrent
// attempts to leave the same state exactly one succeeds, the loser gets
// errors.ErrConflict and none of its side effects are applied.
type StateMachine struct {
	store Store
	clock func() time.Time

	mu        sync.RWMutex
	listeners []TransitionListener
}

// NewStateMachine creates a state machine over the given store.
func NewStateMachine(store Store) *StateMachine {
	return &StateMachine{
		store: store,
		clock: time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (sm *StateMachine) SetClock(clock func() time.Time) {
	sm.clock = clock
}

// AddListener registers a transition observer.
func (sm *StateMachine) AddListener(l TransitionListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, l)
}

// Transition applies target to the caller's view of the job. The caller's
// record supplies the guard version; a stale view loses the race and is
// rejected with errors.ErrConflict. On success the updated record is
// returned and the caller's copy is left untouched.
func (sm *StateMachine) Transition(ctx context.Context, j *job.Job, target job.Status, meta TransitionMeta) (*job.Job, error) {
	from := j.Status

	if j.IsTemplate() && (target == job.StatusProcessing || target == job.StatusCompleted || target == job.StatusFailed) {
		return nil, errors.NewTransitionError(j.ID, string(from), string(target))
	}
	if !edgeAllowed(from, target) {
		return nil, errors.NewTransitionError(j.ID, string(from), string(target))
	}

	now := sm.clock()
	updated := j.Clone()
	updated.Status = target

	switch {
	case from == job.StatusPending && target == job.StatusProcessing:
		updated.StartedAt = &now
		updated.WorkerID = meta.WorkerID
	case target == job.StatusCompleted:
		updated.CompletedAt = &now
		updated.WorkerID = ""
		updated.ErrorMessage = ""
	case target == job.StatusFailed:
		updated.RetryCount++
		updated.ErrorMessage = meta.Error
		updated.WorkerID = ""
	case from == job.StatusFailed && target == job.StatusPending:
		updated.ErrorMessage = ""
	}

	if err := sm.store.Update(ctx, updated); err != nil {
		return nil, err
	}

	sm.emit(TransitionEvent{Job: updated, From: from, To: target, At: now})
	return updated, nil
}

func (sm *StateMachine) emit(ev TransitionEvent) {
	sm.mu.RLock()
	listeners := sm.listeners
	sm.mu.RUnlock()

	for _, l := range listeners {
		l.OnTransition(ev)
	}
}
