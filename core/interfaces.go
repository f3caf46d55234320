package core

import (
	"context"
	"time"

	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

// HandlerFunc executes the business logic for one job type. The payload is
// passed through unexamined; a nil return marks the job completed, any
// error marks it failed and hands it to the retry policy. Handlers must
// not panic to escape the worker; a panic is recovered and treated as a
// failure.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Topics used for downstream hand-off via the Publisher.
const (
	// TopicJobs receives every submitted job for downstream consumers.
	TopicJobs = "jobs"
	// TopicDeadLetter receives jobs that exhausted their retry budget.
	TopicDeadLetter = "jobs.dead-letter"
)

// Channels used for best-effort pushes via the Broadcaster.
const (
	// ChannelJobs carries newly created jobs.
	ChannelJobs = "jobs"
	// ChannelJobStatus carries every state transition.
	ChannelJobStatus = "job-status"
	// ChannelMetrics carries periodic metrics snapshots.
	ChannelMetrics = "metrics"
)

// Store is the persistence contract for job records.
//
// Save inserts a new record; Update applies a compare-and-set on the
// record's Version, returning errors.ErrConflict when the stored version
// differs. Every mutation of an existing record goes through Update; no
// component may read-modify-write a job outside a versioned update.
type Store interface {
	// Save persists a new job. Fails with errors.ErrAlreadyExists on a
	// duplicate ID.
	Save(ctx context.Context, j *job.Job) error

	// Update persists changes guarded by j.Version. On success the stored
	// version and j.Version are incremented. Returns errors.ErrConflict
	// when the versions do not match and errors.ErrNotFound for unknown IDs.
	Update(ctx context.Context, j *job.Job) error

	// FindByID retrieves a job. Returns errors.ErrNotFound when absent.
	FindByID(ctx context.Context, id string) (*job.Job, error)

	// FindByStatus returns jobs in the given status ordered by
	// (priority ascending, createdAt ascending). A limit of 0 means no limit.
	// Recurring templates are never returned.
	FindByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error)

	// FindDueScheduled returns non-template SCHEDULED jobs whose scheduled
	// time is at or before now, ordered by scheduled time.
	FindDueScheduled(ctx context.Context, now time.Time) ([]*job.Job, error)

	// FindRecurringTemplates returns all recurring templates.
	FindRecurringTemplates(ctx context.Context) ([]*job.Job, error)

	// FindFailed returns all FAILED jobs: those awaiting a retry and
	// those that exhausted their budget but have not yet been routed to
	// the dead letter queue.
	FindFailed(ctx context.Context) ([]*job.Job, error)

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[job.Status]int64, error)

	// CountByStatusAndPriority returns per-priority counts for one status.
	CountByStatusAndPriority(ctx context.Context, status job.Status) (map[job.Priority]int64, error)

	// AverageProcessingTime returns the mean completedAt-startedAt over
	// COMPLETED jobs, zero when there are none.
	AverageProcessingTime(ctx context.Context) (time.Duration, error)

	// Connection management
	Ping(ctx context.Context) error
	Close() error
}

// Publisher hands jobs to downstream consumers. Publish is fire-and-forget
// from the engine's point of view: failures are logged, never fatal.
type Publisher interface {
	Publish(ctx context.Context, topic string, j *job.Job) error
	Close() error
}

// Broadcaster pushes status and metrics snapshots to live listeners.
// Delivery is best-effort; failures are logged and never fatal.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, payload any) error
	Close() error
}

// Registry resolves job types to handlers.
type Registry interface {
	// Register adds a handler for a job type
	Register(jobType string, handler HandlerFunc) error

	// Resolve retrieves the handler for a job type
	Resolve(jobType string) (HandlerFunc, bool)
}

// TransitionEvent describes one applied state machine transition.
type TransitionEvent struct {
	Job  *job.Job
	From job.Status
	To   job.Status
	At   time.Time
}

// TransitionListener observes applied transitions. Listeners are invoked
// synchronously after the store update succeeds and must not block.
type TransitionListener interface {
	OnTransition(ev TransitionEvent)
}

// HealthStatus represents the health of the engine
type HealthStatus struct {
	Healthy       bool
	StoreHealth   error
	ActiveWorkers int
	CountsByState map[job.Status]int64
	LastCheck     time.Time
}
