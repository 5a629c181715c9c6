package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/attrmigrate/errors"
)

// Store handles persistence of scheduled jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureJob creates the job if it does not exist yet, due immediately.
// An existing job keeps its schedule; a differing interval is updated in place.
func (s *Store) EnsureJob(ctx context.Context, id string, intervalSeconds int) (*Job, error) {
	if intervalSeconds <= 0 {
		return nil, errors.NewInvalidRequestError("interval must be positive, got %d", intervalSeconds)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (id, interval_seconds, next_run_at, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, intervalSeconds, now, StateActive, now, now)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create scheduled job %s", id)
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IntervalSeconds != intervalSeconds {
		if err := s.UpdateJobInterval(ctx, id, intervalSeconds, job.NextRunAt); err != nil {
			return nil, err
		}
		job.IntervalSeconds = intervalSeconds
	}
	return job, nil
}

const jobColumns = `id, interval_seconds, next_run_at, last_run_at, last_execution_id, state, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var nextRunAt, lastRunAt, lastExecutionID sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&job.ID, &job.IntervalSeconds, &nextRunAt, &lastRunAt, &lastExecutionID,
		&job.State, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	// Parse timestamps (return error if parsing fails - indicates data corruption or schema mismatch)
	var err error
	if job.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}
	if nextRunAt.Valid {
		t, err := time.Parse(time.RFC3339, nextRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse next_run_at for job %s", job.ID)
		}
		job.NextRunAt = &t
	}
	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse last_run_at for job %s", job.ID)
		}
		job.LastRunAt = &t
	}
	job.LastExecutionID = lastExecutionID.String
	return &job, nil
}

// GetJob retrieves a scheduled job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM scheduled_jobs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("scheduled job %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get scheduled job %s", id)
	}
	return job, nil
}

// ListJobsDue returns active jobs whose next run is at or before now,
// oldest due first.
func (s *Store) ListJobsDue(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE state = ? AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC
	`, StateActive, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query due jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan scheduled job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating due jobs")
	}
	return jobs, nil
}

// GetNextScheduledJob returns the soonest active job, or nil when none is scheduled
func (s *Store) GetNextScheduledJob(ctx context.Context) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE state = ? AND next_run_at IS NOT NULL
		ORDER BY next_run_at ASC
		LIMIT 1
	`, StateActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next scheduled job")
	}
	return job, nil
}

// UpdateJobState updates the state of a scheduled job
func (s *Store) UpdateJobState(ctx context.Context, id, state string) error {
	if state != StateActive && state != StatePaused {
		return errors.NewInvalidRequestError("unknown job state %q", state)
	}
	return s.exec(ctx, id, "UPDATE scheduled_jobs SET state = ?, updated_at = ? WHERE id = ?",
		state, time.Now().UTC().Format(time.RFC3339), id)
}

// UpdateJobInterval sets the interval and the next run time of a job
func (s *Store) UpdateJobInterval(ctx context.Context, id string, intervalSeconds int, nextRun *time.Time) error {
	if intervalSeconds <= 0 {
		return errors.NewInvalidRequestError("interval must be positive, got %d", intervalSeconds)
	}
	var next interface{}
	if nextRun != nil {
		next = nextRun.UTC().Format(time.RFC3339)
	}
	return s.exec(ctx, id,
		"UPDATE scheduled_jobs SET interval_seconds = ?, next_run_at = ?, updated_at = ? WHERE id = ?",
		intervalSeconds, next, time.Now().UTC().Format(time.RFC3339), id)
}

// UpdateJobAfterExecution records a run and schedules the next one
func (s *Store) UpdateJobAfterExecution(ctx context.Context, id string, lastRun time.Time, executionID string, nextRun time.Time) error {
	return s.exec(ctx, id, `
		UPDATE scheduled_jobs
		SET last_run_at = ?, last_execution_id = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?
	`, lastRun.UTC().Format(time.RFC3339), executionID, nextRun.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339), id)
}

func (s *Store) exec(ctx context.Context, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update scheduled job %s", id)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("scheduled job %s", id)
	}
	return nil
}
