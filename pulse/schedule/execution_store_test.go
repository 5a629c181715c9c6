package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/attrmigrate/errors"
	testdb "github.com/teranos/attrmigrate/internal/testing"
	"github.com/teranos/attrmigrate/internal/util"
)

func newExecution(id, trigger string, startedAt time.Time) *Execution {
	ts := startedAt.UTC().Format(time.RFC3339)
	return &Execution{
		ID:             id,
		ScheduledJobID: ConversionJobID,
		Trigger:        trigger,
		Status:         ExecutionStatusRunning,
		StartedAt:      ts,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

func TestCreateAndUpdateExecution(t *testing.T) {
	ctx := context.Background()
	execStore := NewExecutionStore(testdb.CreateTestDB(t))

	exec := newExecution("PE_test456", TriggerManual, time.Now())
	require.NoError(t, execStore.CreateExecution(ctx, exec))

	retrieved, err := execStore.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, retrieved.ID)
	assert.Equal(t, TriggerManual, retrieved.Trigger)
	assert.Equal(t, ExecutionStatusRunning, retrieved.Status)
	assert.Nil(t, retrieved.CompletedAt)
	assert.Nil(t, retrieved.DurationMs)

	exec.Status = ExecutionStatusCompleted
	exec.CompletedAt = util.Ptr(time.Now().UTC().Format(time.RFC3339))
	exec.DurationMs = util.Ptr(1500)
	exec.ResultSummary = util.Ptr("scanned=3")
	require.NoError(t, execStore.UpdateExecution(ctx, exec))

	retrieved, err = execStore.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusCompleted, retrieved.Status)
	require.NotNil(t, retrieved.DurationMs)
	assert.Equal(t, 1500, *retrieved.DurationMs)
	require.NotNil(t, retrieved.ResultSummary)
	assert.Equal(t, "scanned=3", *retrieved.ResultSummary)
	assert.Nil(t, retrieved.ErrorMessage)
}

func TestExecutionStore_NotFound(t *testing.T) {
	ctx := context.Background()
	execStore := NewExecutionStore(testdb.CreateTestDB(t))

	_, err := execStore.GetExecution(ctx, "PE_missing")
	assert.True(t, errors.IsNotFoundError(err))

	err = execStore.UpdateExecution(ctx, newExecution("PE_missing", TriggerManual, time.Now()))
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListExecutions(t *testing.T) {
	ctx := context.Background()
	execStore := NewExecutionStore(testdb.CreateTestDB(t))

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		trigger := TriggerScheduled
		if i%2 == 1 {
			trigger = TriggerManual
		}
		exec := newExecution(fmt.Sprintf("PE_%d", i), trigger, base.Add(time.Duration(i)*time.Minute))
		if i == 4 {
			exec.Status = ExecutionStatusFailed
		}
		require.NoError(t, execStore.CreateExecution(ctx, exec))
	}

	page, total, err := execStore.ListExecutions(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "PE_4", page[0].ID, "newest first")
	assert.Equal(t, "PE_3", page[1].ID)

	page, _, err = execStore.ListExecutions(ctx, ListOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "PE_0", page[0].ID)

	manual, total, err := execStore.ListExecutions(ctx, ListOptions{Trigger: TriggerManual})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, manual, 2)

	failed, total, err := execStore.ListExecutions(ctx, ListOptions{Status: ExecutionStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "PE_4", failed[0].ID)
}

func TestCleanupOldExecutions(t *testing.T) {
	ctx := context.Background()
	db := testdb.CreateTestDB(t)
	execStore := NewExecutionStore(db)

	old := newExecution("PE_old", TriggerScheduled, time.Now().AddDate(0, 0, -100))
	recent := newExecution("PE_recent", TriggerScheduled, time.Now())
	require.NoError(t, execStore.CreateExecution(ctx, old))
	require.NoError(t, execStore.CreateExecution(ctx, recent))

	_, err := db.Exec(`INSERT INTO run_events (execution_id, timestamp, kind, level, message) VALUES ('PE_old', '', 'error', 'error', 'x')`)
	require.NoError(t, err)

	deleted, err := execStore.CleanupOldExecutions(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = execStore.GetExecution(ctx, "PE_old")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = execStore.GetExecution(ctx, "PE_recent")
	assert.NoError(t, err)

	var events int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM run_events").Scan(&events))
	assert.Zero(t, events)
}
