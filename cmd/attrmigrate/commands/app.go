package commands

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/attrmigrate/am"
	"github.com/teranos/attrmigrate/catalog"
	"github.com/teranos/attrmigrate/convert"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/logger"
	"github.com/teranos/attrmigrate/pulse/schedule"
	"github.com/teranos/attrmigrate/runlog"
	"github.com/teranos/attrmigrate/taxonomy"
)

// app wires the conversion components over one database.
// The conversion settings can be swapped while the app runs.
type app struct {
	db         *sql.DB
	registry   *taxonomy.SQLRegistry
	catalog    *catalog.SQLStore
	events     *runlog.Store
	engine     *convert.Engine
	executor   *schedule.Executor
	jobs       *schedule.Store
	executions *schedule.ExecutionStore

	mu  sync.RWMutex
	cfg *am.Config
}

// loadConfig loads the effective configuration, logs sanitization warnings
// and rejects invalid values.
func loadConfig() (*am.Config, error) {
	loaded, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	cfg := copyConfig(loaded)
	for _, w := range cfg.Sanitize() {
		logger.Warnw("Config warning", logger.FieldError, w, "hints", errors.GetAllHints(w))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func copyConfig(cfg *am.Config) *am.Config {
	c := *cfg
	c.Conversion.Attributes = append([]string(nil), cfg.Conversion.Attributes...)
	return &c
}

// dbPathFlag returns the --db override, if any
func dbPathFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("db")
	return path
}

// newApp opens the database at dbPath (or the configured path) and wires the engine
func newApp(cfg *am.Config, dbPath string) (*app, error) {
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	database, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		db:         database,
		registry:   taxonomy.NewSQLRegistry(database),
		catalog:    catalog.NewSQLStore(database),
		events:     runlog.NewStore(database),
		jobs:       schedule.NewStore(database),
		executions: schedule.NewExecutionStore(database),
		cfg:        cfg,
	}
	a.engine = convert.NewEngine(a.registry, a.catalog, convert.Options{
		ItemType: cfg.Conversion.ItemType,
		Logger:   logger.ComponentLogger("convert"),
		RunLog:   a.events,
	})
	a.executor = schedule.NewExecutor(database, a.pass, schedule.ExecutorConfig{
		JobID:    schedule.ConversionJobID,
		LeaseTTL: time.Duration(cfg.Pulse.LeaseTTLSeconds) * time.Second,
	}, logger.ComponentLogger("pulse.executor"))
	return a, nil
}

// pass runs one conversion pass with the current attribute list
func (a *app) pass(ctx context.Context) (*runlog.Summary, error) {
	return a.engine.RunPass(ctx, a.config().Conversion.Attributes)
}

func (a *app) config() *am.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *app) setConfig(cfg *am.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

// Load returns a copy of the settings passes run with
func (a *app) Load() (*am.Config, error) {
	return copyConfig(a.config()), nil
}

// SetAttributes persists names and applies them to the following passes
func (a *app) SetAttributes(names []string) error {
	if err := am.UpdateConversionAttributes(names); err != nil {
		return err
	}
	return a.refresh()
}

// SetInterval persists the pass interval
func (a *app) SetInterval(seconds int) error {
	if err := am.UpdateConversionInterval(seconds); err != nil {
		return err
	}
	return a.refresh()
}

func (a *app) refresh() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a.setConfig(cfg)
	return nil
}

// onReload applies reloaded settings and reschedules the job when the interval changed
func (a *app) onReload(ctx context.Context, rescheduler interface {
	Reschedule(ctx context.Context, intervalSeconds int) error
}) am.ReloadCallback {
	return func(cfg *am.Config) error {
		next := copyConfig(cfg)
		next.Sanitize()
		if err := next.Validate(); err != nil {
			return errors.Wrap(err, "reloaded configuration is invalid, keeping previous settings")
		}

		prev := a.config()
		a.setConfig(next)
		if next.Database.Path != prev.Database.Path {
			logger.Warnw("database.path changed, restart to apply", logger.FieldPath, next.Database.Path)
		}
		if next.Conversion.IntervalSeconds != prev.Conversion.IntervalSeconds {
			return rescheduler.Reschedule(ctx, next.Conversion.IntervalSeconds)
		}
		return nil
	}
}

// Close closes the database
func (a *app) Close() error {
	return a.db.Close()
}
