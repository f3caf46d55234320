// Package job defines the job record, its status and priority enums, and
// the validating factories that create records before they reach a store.
package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/ankit2020bhagat/JobQueueSystem/errors"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to be claimed by a worker.
	StatusPending Status = "PENDING"
	// StatusScheduled means the job is waiting for its scheduled time.
	StatusScheduled Status = "SCHEDULED"
	// StatusProcessing means a worker currently holds the claim on the job.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed means the last execution failed; the job may be retried.
	StatusFailed Status = "FAILED"
	// StatusDeadLetter means the job exhausted its retry budget.
	StatusDeadLetter Status = "DEAD_LETTER"
	// StatusCancelled means the job was cancelled before completing.
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDeadLetter, StatusCancelled:
		return true
	}
	return false
}

// Priority orders jobs for dispatch. Lower values dispatch first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	}
	return "UNKNOWN"
}

// Valid reports whether p is a recognized priority level.
func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// Job is the unit of work tracked by the engine.
//
// A record with CronExpression set is a recurring template: it is never
// dispatched itself, only the instances it spawns are. Version guards
// every mutation; stores reject updates whose version does not match the
// stored record.
type Job struct {
	ID             string     `json:"id"`
	Type           string     `json:"job_type"`
	Priority       Priority   `json:"priority"`
	Status         Status     `json:"status"`
	Payload        []byte     `json:"payload,omitempty"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
	ScheduledTime  *time.Time `json:"scheduled_time,omitempty"`
	CronExpression string     `json:"cron_expression,omitempty"`
	LastFiredAt    *time.Time `json:"last_fired_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	WorkerID       string     `json:"worker_id,omitempty"`
	Version        int64      `json:"version"`
}

// IsTemplate reports whether the record is a recurring template.
func (j *Job) IsTemplate() bool {
	return j.CronExpression != ""
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Payload != nil {
		cp.Payload = append([]byte(nil), j.Payload...)
	}
	cp.ScheduledTime = copyTime(j.ScheduledTime)
	cp.LastFiredAt = copyTime(j.LastFiredAt)
	cp.StartedAt = copyTime(j.StartedAt)
	cp.CompletedAt = copyTime(j.CompletedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func newJob(jobType string, payload []byte, priority Priority, maxRetries int, now time.Time) (*Job, error) {
	if jobType == "" {
		return nil, errors.NewValidationError("jobType", errors.ErrEmptyJobType)
	}
	if !priority.Valid() {
		return nil, errors.NewValidationError("priority", errors.ErrInvalidPriority)
	}
	if maxRetries < 0 {
		return nil, errors.NewValidationError("maxRetries", errors.ErrNegativeRetries)
	}
	return &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Priority:   priority,
		Status:     StatusPending,
		Payload:    append([]byte(nil), payload...),
		MaxRetries: maxRetries,
		CreatedAt:  now,
		Version:    1,
	}, nil
}

// New creates an immediately dispatchable job in PENDING state.
func New(jobType string, payload []byte, priority Priority, maxRetries int, now time.Time) (*Job, error) {
	return newJob(jobType, payload, priority, maxRetries, now)
}

// NewScheduled creates a job that waits in SCHEDULED state until at.
func NewScheduled(jobType string, payload []byte, priority Priority, maxRetries int, at, now time.Time) (*Job, error) {
	j, err := newJob(jobType, payload, priority, maxRetries, now)
	if err != nil {
		return nil, err
	}
	j.Status = StatusScheduled
	j.ScheduledTime = &at
	return j, nil
}

// NewTemplate creates a recurring template. The cron expression is assumed
// to have been validated by the caller; templates stay SCHEDULED and are
// expanded into instances by the scheduler.
func NewTemplate(jobType string, payload []byte, priority Priority, maxRetries int, cronExpr string, now time.Time) (*Job, error) {
	if cronExpr == "" {
		return nil, errors.NewValidationError("cronExpression", errors.ErrEmptyCron)
	}
	j, err := newJob(jobType, payload, priority, maxRetries, now)
	if err != nil {
		return nil, err
	}
	j.Status = StatusScheduled
	j.CronExpression = cronExpr
	return j, nil
}

// NewInstance spawns a dispatchable instance of a recurring template for
// the given occurrence time. The instance carries no cron expression.
func (j *Job) NewInstance(fireAt, now time.Time) *Job {
	inst := &Job{
		ID:         uuid.NewString(),
		Type:       j.Type,
		Priority:   j.Priority,
		Status:     StatusScheduled,
		Payload:    append([]byte(nil), j.Payload...),
		MaxRetries: j.MaxRetries,
		CreatedAt:  now,
		Version:    1,
	}
	at := fireAt
	inst.ScheduledTime = &at
	return inst
}
