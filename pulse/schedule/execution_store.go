package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/attrmigrate/errors"
)

// ExecutionStore handles persistence of pass execution history
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// CreateExecution creates a new execution record
func (s *ExecutionStore) CreateExecution(ctx context.Context, exec *Execution) error {
	query := `
		INSERT INTO pass_executions (
			id, scheduled_job_id, trigger_source, status,
			started_at, completed_at, duration_ms,
			result_summary, error_message,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	completedAt, durationMs, resultSummary, errorMessage := optionalFields(exec)
	_, err := s.db.ExecContext(ctx, query,
		exec.ID,
		exec.ScheduledJobID,
		exec.Trigger,
		exec.Status,
		exec.StartedAt,
		completedAt,
		durationMs,
		resultSummary,
		errorMessage,
		exec.CreatedAt,
		exec.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}
	return nil
}

// UpdateExecution updates an existing execution record
func (s *ExecutionStore) UpdateExecution(ctx context.Context, exec *Execution) error {
	query := `
		UPDATE pass_executions
		SET status = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    result_summary = ?,
		    error_message = ?,
		    updated_at = ?
		WHERE id = ?
	`

	completedAt, durationMs, resultSummary, errorMessage := optionalFields(exec)
	result, err := s.db.ExecContext(ctx, query,
		exec.Status,
		completedAt,
		durationMs,
		resultSummary,
		errorMessage,
		exec.UpdatedAt,
		exec.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("execution %s", exec.ID)
	}
	return nil
}

// Convert optional fields to driver values
func optionalFields(exec *Execution) (completedAt, durationMs, resultSummary, errorMessage interface{}) {
	if exec.CompletedAt != nil {
		completedAt = *exec.CompletedAt
	}
	if exec.DurationMs != nil {
		durationMs = *exec.DurationMs
	}
	if exec.ResultSummary != nil {
		resultSummary = *exec.ResultSummary
	}
	if exec.ErrorMessage != nil {
		errorMessage = *exec.ErrorMessage
	}
	return
}

const executionColumns = `
	id, scheduled_job_id, trigger_source, status,
	started_at, completed_at, duration_ms,
	result_summary, error_message,
	created_at, updated_at
`

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var completedAt, resultSummary, errorMessage sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&exec.ID,
		&exec.ScheduledJobID,
		&exec.Trigger,
		&exec.Status,
		&exec.StartedAt,
		&completedAt,
		&durationMs,
		&resultSummary,
		&errorMessage,
		&exec.CreatedAt,
		&exec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Convert sql.Null* types to pointers
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.String
	}
	if durationMs.Valid {
		duration := int(durationMs.Int64)
		exec.DurationMs = &duration
	}
	if resultSummary.Valid {
		exec.ResultSummary = &resultSummary.String
	}
	if errorMessage.Valid {
		exec.ErrorMessage = &errorMessage.String
	}
	return &exec, nil
}

// GetExecution retrieves an execution by ID
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	exec, err := scanExecution(s.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM pass_executions WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("execution %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution")
	}
	return exec, nil
}

// ListOptions filter and paginate ListExecutions
type ListOptions struct {
	Limit   int
	Offset  int
	Status  string
	Trigger string
}

// ListExecutions returns executions newest first, with the total matching count
func (s *ExecutionStore) ListExecutions(ctx context.Context, opts ListOptions) ([]*Execution, int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	// Build query with optional filters
	baseQuery := " FROM pass_executions WHERE 1 = 1"
	var args []interface{}
	if opts.Status != "" {
		baseQuery += " AND status = ?"
		args = append(args, opts.Status)
	}
	if opts.Trigger != "" {
		baseQuery += " AND trigger_source = ?"
		args = append(args, opts.Trigger)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count executions")
	}

	query := "SELECT " + executionColumns + baseQuery + " ORDER BY started_at DESC, created_at DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	executions := []*Execution{}
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, exec)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "error iterating executions")
	}

	return executions, total, nil
}

// CleanupOldExecutions deletes execution records and their run events
// started more than retentionDays ago. Returns the number of executions deleted.
func (s *ExecutionStore) CleanupOldExecutions(ctx context.Context, retentionDays int) (int, error) {
	cutoffTime := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin cleanup")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM run_events
		WHERE execution_id IN (SELECT id FROM pass_executions WHERE started_at < ?)
	`, cutoffTime); err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old run events")
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM pass_executions WHERE started_at < ?", cutoffTime)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old executions")
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit cleanup")
	}
	return int(deleted), nil
}
