// Package sqlite provides a SQLite-backed Store implementation. The
// atomic transition guarantee rides on a version-guarded UPDATE: a lost
// race affects zero rows and surfaces as errors.ErrConflict.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ankit2020bhagat/JobQueueSystem/core"
	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

var _ core.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	job_type        TEXT NOT NULL,
	priority        INTEGER NOT NULL,
	status          TEXT NOT NULL,
	payload         BLOB,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	max_retries     INTEGER NOT NULL DEFAULT 0,
	scheduled_time  INTEGER,
	cron_expression TEXT NOT NULL DEFAULT '',
	last_fired_at   INTEGER,
	created_at      INTEGER NOT NULL,
	started_at      INTEGER,
	completed_at    INTEGER,
	error_message   TEXT NOT NULL DEFAULT '',
	worker_id       TEXT NOT NULL DEFAULT '',
	version         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_priority ON jobs(status, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_scheduled_time ON jobs(scheduled_time);
`

const jobColumns = `id, job_type, priority, status, payload, retry_count, max_retries,
	scheduled_time, cron_expression, last_fired_at, created_at, started_at,
	completed_at, error_message, worker_id, version`

// Store is a SQLite-backed job store.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) a SQLite database at path. Use ":memory:"
// for an ephemeral database.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewConnectionError(path, err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent loop writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save persists a new job.
func (s *Store) Save(ctx context.Context, j *job.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Type, int(j.Priority), string(j.Status), j.Payload,
		j.RetryCount, j.MaxRetries, nanos(j.ScheduledTime), j.CronExpression,
		nanos(j.LastFiredAt), j.CreatedAt.UnixNano(), nanos(j.StartedAt),
		nanos(j.CompletedAt), j.ErrorMessage, j.WorkerID, j.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update applies a compare-and-set on the job's version.
func (s *Store) Update(ctx context.Context, j *job.Job) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			job_type = ?, priority = ?, status = ?, payload = ?,
			retry_count = ?, max_retries = ?, scheduled_time = ?,
			cron_expression = ?, last_fired_at = ?, started_at = ?,
			completed_at = ?, error_message = ?, worker_id = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		j.Type, int(j.Priority), string(j.Status), j.Payload,
		j.RetryCount, j.MaxRetries, nanos(j.ScheduledTime), j.CronExpression,
		nanos(j.LastFiredAt), nanos(j.StartedAt), nanos(j.CompletedAt),
		j.ErrorMessage, j.WorkerID,
		j.ID, j.Version,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = ?)`, j.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if !exists {
			return errors.ErrNotFound
		}
		return errors.ErrConflict
	}

	j.Version++
	return nil
}

// FindByID retrieves a job by ID.
func (s *Store) FindByID(ctx context.Context, id string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	return j, err
}

// FindByStatus returns non-template jobs in the given status ordered by
// (priority ascending, createdAt ascending).
func (s *Store) FindByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = ? AND cron_expression = ''
		ORDER BY priority ASC, created_at ASC
		LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	return scanJobs(rows)
}

// FindDueScheduled returns non-template SCHEDULED jobs due at or before now.
func (s *Store) FindDueScheduled(ctx context.Context, now time.Time) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = ? AND cron_expression = ''
			AND scheduled_time IS NOT NULL AND scheduled_time <= ?
		ORDER BY scheduled_time ASC`,
		string(job.StatusScheduled), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query due scheduled: %w", err)
	}
	return scanJobs(rows)
}

// FindRecurringTemplates returns all recurring templates.
func (s *Store) FindRecurringTemplates(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE cron_expression != ''
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	return scanJobs(rows)
}

// FindFailed returns all FAILED jobs.
func (s *Store) FindFailed(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = ?
		ORDER BY created_at ASC`,
		string(job.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("query failed jobs: %w", err)
	}
	return scanJobs(rows)
}

// CountByStatus returns the number of jobs per status.
func (s *Store) CountByStatus(ctx context.Context) (map[job.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[job.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[job.Status(status)] = n
	}
	return counts, rows.Err()
}

// CountByStatusAndPriority returns per-priority counts for one status.
func (s *Store) CountByStatusAndPriority(ctx context.Context, status job.Status) (map[job.Priority]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT priority, COUNT(*) FROM jobs
		WHERE status = ? GROUP BY priority`, string(status))
	if err != nil {
		return nil, fmt.Errorf("count by priority: %w", err)
	}
	defer rows.Close()

	counts := make(map[job.Priority]int64)
	for rows.Next() {
		var priority int
		var n int64
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, err
		}
		counts[job.Priority(priority)] = n
	}
	return counts, rows.Err()
}

// AverageProcessingTime returns the mean completedAt-startedAt over
// COMPLETED jobs.
func (s *Store) AverageProcessingTime(ctx context.Context) (time.Duration, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(completed_at - started_at) FROM jobs
		WHERE status = ? AND started_at IS NOT NULL AND completed_at IS NOT NULL`,
		string(job.StatusCompleted)).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average processing time: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return time.Duration(avg.Float64), nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*job.Job, error) {
	var (
		j           job.Job
		priority    int
		status      string
		scheduled   sql.NullInt64
		lastFired   sql.NullInt64
		createdAt   int64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
	)
	err := sc.Scan(
		&j.ID, &j.Type, &priority, &status, &j.Payload,
		&j.RetryCount, &j.MaxRetries, &scheduled, &j.CronExpression,
		&lastFired, &createdAt, &startedAt, &completedAt,
		&j.ErrorMessage, &j.WorkerID, &j.Version,
	)
	if err != nil {
		return nil, err
	}

	j.Priority = job.Priority(priority)
	j.Status = job.Status(status)
	j.CreatedAt = time.Unix(0, createdAt)
	j.ScheduledTime = fromNanos(scheduled)
	j.LastFiredAt = fromNanos(lastFired)
	j.StartedAt = fromNanos(startedAt)
	j.CompletedAt = fromNanos(completedAt)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	defer rows.Close()

	result := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
