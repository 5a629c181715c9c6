package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/attrmigrate/db"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/logger"
)

// Ticker runs the conversion job whenever it is due.
// It checks the schedule once per Interval.
type Ticker struct {
	store           *Store
	executions      *ExecutionStore
	executor        *Executor
	jobID           string
	interval        time.Duration
	retentionDays   int
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	logger          *zap.SugaredLogger
	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
	lastNextRun     time.Time // Last reported next run, to log only on change
}

// TickerConfig contains configuration for the ticker
type TickerConfig struct {
	Interval      time.Duration // How often to check the schedule (default: 1 second)
	JobID         string        // Job to drive (default: ConversionJobID)
	RetentionDays int           // Execution history kept; 0 keeps everything
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval:      1 * time.Second,
		JobID:         ConversionJobID,
		RetentionDays: 90,
	}
}

// NewTicker creates a new ticker
func NewTicker(store *Store, executor *Executor, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	return NewTickerWithContext(context.Background(), store, executor, cfg, log)
}

// NewTickerWithContext creates a ticker with a parent context
func NewTickerWithContext(ctx context.Context, store *Store, executor *Executor, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.JobID == "" {
		cfg.JobID = ConversionJobID
	}
	if log == nil {
		log = logger.ComponentLogger("pulse.ticker")
	}
	tickerCtx, cancel := context.WithCancel(ctx)

	return &Ticker{
		store:         store,
		executions:    NewExecutionStore(store.db),
		executor:      executor,
		jobID:         cfg.JobID,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		ctx:           tickerCtx,
		cancel:        cancel,
		logger:        log,
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.logger.Infow("Pulse ticker started", logger.FieldInterval, t.interval)
}

// Stop gracefully stops the ticker, waiting for a running pass to finish
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("Pulse ticker stopped")
}

// run is the main ticker loop
func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			ticks := t.ticksSinceStart
			t.mu.Unlock()

			if err := t.checkScheduledJobs(tickTime); err != nil {
				if db.IsDatabaseClosed(err) {
					t.logger.Debugw("Pulse tick skipped, database closed", "tick", ticks)
					continue
				}
				// Don't spam logs - log errors at warn level
				t.logger.Warnw("Pulse tick error", logger.FieldError, err, "tick", ticks)
			}
			t.logNextJobInfo(time.Now())
		}
	}
}

// logNextJobInfo logs the time until the next run whenever it changes
func (t *Ticker) logNextJobInfo(now time.Time) {
	next, err := t.store.GetNextScheduledJob(t.ctx)
	if err != nil || next == nil || next.NextRunAt == nil {
		return
	}

	t.mu.Lock()
	changed := !next.NextRunAt.Equal(t.lastNextRun)
	t.lastNextRun = *next.NextRunAt
	t.mu.Unlock()
	if !changed {
		return
	}

	timeUntil := next.NextRunAt.Sub(now)
	if timeUntil < 0 {
		timeUntil = 0
	}
	t.logger.Infow(fmt.Sprintf("Pulse - next conversion pass in %s", timeUntil.Round(time.Second)),
		"job_id", next.ID,
		"next_run_at", next.NextRunAt.Format(time.RFC3339))
}

// checkScheduledJobs runs the driven job if it is due
func (t *Ticker) checkScheduledJobs(now time.Time) error {
	jobs, err := t.store.ListJobsDue(t.ctx, now)
	if err != nil {
		return errors.Wrap(err, "failed to list scheduled jobs")
	}

	for _, job := range jobs {
		// Check for context cancellation before processing next job
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()
		default:
		}

		if job.ID != t.jobID {
			continue
		}
		if err := t.executeScheduledJob(job, now); err != nil {
			t.logger.Errorw("Failed to execute scheduled job",
				"job_id", job.ID,
				logger.FieldError, err)
		}
	}
	return nil
}

// executeScheduledJob runs the pass and moves next_run_at forward by the interval
func (t *Ticker) executeScheduledJob(job *Job, now time.Time) error {
	t.logger.Infow("Pulse executing scheduled conversion pass",
		"job_id", job.ID,
		logger.FieldInterval, job.Interval())

	execution, summary, err := t.executor.Execute(t.ctx, TriggerScheduled)
	if errors.Is(err, errors.ErrPassInProgress) && execution == nil {
		// Another process holds the lease; try again next tick
		t.logger.Debugw("Conversion pass already running elsewhere", "job_id", job.ID)
		return nil
	}
	if execution == nil {
		return errors.Wrap(err, "failed to start conversion pass")
	}

	nextRun := now.Add(job.Interval())
	fields := []interface{}{
		"job_id", job.ID,
		logger.FieldExecutionID, execution.ID,
		"next_run_at", nextRun.UTC().Format(time.RFC3339),
	}
	if execution.DurationMs != nil {
		fields = append(fields, logger.FieldDurationMS, *execution.DurationMs)
	}
	if summary != nil {
		fields = append(fields,
			"entries_converted", summary.EntriesConverted,
			"terms_created", summary.TermsCreated,
			"errors", summary.Errors)
	}
	if metrics, merr := readSystemMetrics(); merr == nil && metrics.MemoryTotalGB > 0 {
		fields = append(fields, "memory", fmt.Sprintf("%.1f/%.1fGB (%.0f%%)",
			metrics.MemoryUsedGB, metrics.MemoryTotalGB, metrics.MemoryPercent))
	}

	if err != nil {
		t.logger.Errorw("Pulse FAILED", append(fields, logger.FieldError, err)...)
	} else {
		t.logger.Infow("Pulse OK", fields...)
	}

	if err := t.store.UpdateJobAfterExecution(context.WithoutCancel(t.ctx), job.ID, now, execution.ID, nextRun); err != nil {
		return errors.Wrap(err, "failed to update scheduled job")
	}

	if t.retentionDays > 0 {
		if deleted, err := t.executions.CleanupOldExecutions(context.WithoutCancel(t.ctx), t.retentionDays); err != nil {
			t.logger.Warnw("Failed to clean up old executions", logger.FieldError, err)
		} else if deleted > 0 {
			t.logger.Infow("Cleaned up old executions", logger.FieldCount, deleted)
		}
	}
	return nil
}

// Reschedule persists a new interval and makes the job due right away,
// so the next tick runs a pass and later runs follow the new cadence.
func (t *Ticker) Reschedule(ctx context.Context, intervalSeconds int) error {
	now := time.Now()
	if err := t.store.UpdateJobInterval(ctx, t.jobID, intervalSeconds, &now); err != nil {
		return err
	}
	t.logger.Infow("Pulse rescheduled conversion pass",
		logger.FieldInterval, time.Duration(intervalSeconds)*time.Second)
	return nil
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval,
	}
}
