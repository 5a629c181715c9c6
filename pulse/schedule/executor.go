package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/internal/util"
	"github.com/teranos/attrmigrate/logger"
	"github.com/teranos/attrmigrate/runlog"
)

// PassFunc runs one conversion pass. ctx carries the execution id.
type PassFunc func(ctx context.Context) (*runlog.Summary, error)

// ExecutorConfig configures an Executor
type ExecutorConfig struct {
	JobID    string        // scheduled job executions are attributed to (default ConversionJobID)
	LeaseTTL time.Duration // how long a crashed holder blocks other passes (default 1h)
}

// Executor runs passes under the cross-process lease and records each run
type Executor struct {
	executions *ExecutionStore
	leases     *LeaseStore
	pass       PassFunc
	jobID      string
	leaseTTL   time.Duration
	logger     *zap.SugaredLogger
}

// NewExecutor creates an executor over db running pass
func NewExecutor(db *sql.DB, pass PassFunc, cfg ExecutorConfig, log *zap.SugaredLogger) *Executor {
	if cfg.JobID == "" {
		cfg.JobID = ConversionJobID
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = time.Hour
	}
	if log == nil {
		log = logger.ComponentLogger("pulse.executor")
	}
	return &Executor{
		executions: NewExecutionStore(db),
		leases:     NewLeaseStore(db),
		pass:       pass,
		jobID:      cfg.JobID,
		leaseTTL:   cfg.LeaseTTL,
		logger:     log,
	}
}

// Execute runs one pass for trigger and returns its execution record.
//
// When another pass holds the lease, Execute returns ErrPassInProgress and
// records nothing. A pass refused by the engine's own guard is recorded as skipped.
func (e *Executor) Execute(ctx context.Context, trigger string) (*Execution, *runlog.Summary, error) {
	ctx = context.WithoutCancel(ctx)
	holder := uuid.NewString()

	acquired, err := e.leases.Acquire(ctx, PassLeaseName, holder, e.leaseTTL)
	if err != nil {
		return nil, nil, err
	}
	if !acquired {
		return nil, nil, errors.WithHint(errors.ErrPassInProgress, "another process is running a conversion pass")
	}
	defer func() {
		if err := e.leases.Release(ctx, PassLeaseName, holder); err != nil {
			e.logger.Warnw("Failed to release pass lease", logger.FieldError, err)
		}
	}()

	startTime := time.Now().UTC()
	execution := &Execution{
		ID:             "PE_" + uuid.NewString(),
		ScheduledJobID: e.jobID,
		Trigger:        trigger,
		Status:         ExecutionStatusRunning,
		StartedAt:      startTime.Format(time.RFC3339),
		CreatedAt:      startTime.Format(time.RFC3339),
		UpdatedAt:      startTime.Format(time.RFC3339),
	}
	if err := e.executions.CreateExecution(ctx, execution); err != nil {
		e.logger.Errorw("Failed to create execution record",
			logger.FieldExecutionID, execution.ID,
			logger.FieldError, err)
		// Continue anyway - the pass itself does not depend on its record
	}

	passCtx := logger.WithExecutionID(ctx, execution.ID)
	summary, passErr := e.pass(passCtx)

	completedAt := time.Now().UTC()
	durationMs := int(completedAt.Sub(startTime).Milliseconds())
	execution.CompletedAt = util.Ptr(completedAt.Format(time.RFC3339))
	execution.DurationMs = &durationMs
	execution.UpdatedAt = completedAt.Format(time.RFC3339)

	switch {
	case passErr == nil:
		execution.Status = ExecutionStatusCompleted
		if summary != nil {
			execution.ResultSummary = util.Ptr(summary.String())
		}
	case errors.Is(passErr, errors.ErrPassInProgress):
		execution.Status = ExecutionStatusSkipped
		execution.ErrorMessage = util.Ptr(passErr.Error())
	default:
		execution.Status = ExecutionStatusFailed
		execution.ErrorMessage = util.Ptr(passErr.Error())
	}

	log := logger.LoggerFromContext(passCtx, e.logger)
	if passErr != nil {
		log.Warnw("Conversion pass did not run",
			logger.FieldTrigger, trigger,
			logger.FieldDurationMS, durationMs,
			logger.FieldError, passErr)
	} else {
		log.Infow("Conversion pass recorded",
			logger.FieldTrigger, trigger,
			logger.FieldDurationMS, durationMs)
	}

	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		e.logger.Errorw("Failed to update execution record",
			logger.FieldExecutionID, execution.ID,
			logger.FieldError, err)
	}

	return execution, summary, passErr
}
