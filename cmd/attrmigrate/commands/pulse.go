package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/attrmigrate/am"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/logger"
	"github.com/teranos/attrmigrate/pulse/schedule"
	"github.com/teranos/attrmigrate/server"
	"github.com/teranos/attrmigrate/sym"
)

// PulseCmd represents the pulse command - the scheduling daemon
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Manage the Pulse daemon (scheduled conversion passes)",
	Long: `Pulse daemon - runs the conversion pass on a schedule.

The daemon provides:
- A ticker that runs the pass every conversion.interval_seconds
- The HTTP admin API (manual trigger, history, settings)
- Config reload: a changed interval reschedules the next pass to run now

Example:
  attrmigrate pulse start               # Start daemon in foreground
  attrmigrate pulse start --no-server   # Scheduler only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the Pulse daemon
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Pulse daemon",
	Long: `Start the Pulse daemon in foreground mode.

The daemon runs until interrupted (Ctrl+C or SIGTERM). A pass in progress
finishes before the daemon exits.`,
	RunE: runPulseStart,
}

func init() {
	PulseStartCmd.Flags().Bool("no-server", false, "Do not serve the HTTP admin API")
	PulseStartCmd.Flags().Int("port", 0, "HTTP port (default server.port)")
	PulseCmd.AddCommand(PulseStartCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, dbPathFlag(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := a.jobs.EnsureJob(ctx, schedule.ConversionJobID, cfg.Conversion.IntervalSeconds)
	if err != nil {
		return err
	}

	tickerCfg := schedule.TickerConfig{
		Interval:      time.Duration(cfg.Pulse.TickerIntervalSeconds) * time.Second,
		JobID:         schedule.ConversionJobID,
		RetentionDays: cfg.Pulse.ExecutionRetentionDays,
	}
	ticker := schedule.NewTickerWithContext(ctx, a.jobs, a.executor, tickerCfg, logger.ComponentLogger("pulse.ticker"))
	ticker.Start()

	watcher := startConfigWatcher(ctx, a, ticker)

	serverErr := make(chan error, 1)
	noServer, _ := cmd.Flags().GetBool("no-server")
	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = cfg.Server.Port
	}
	if !noServer {
		srv, err := newServer(a, ticker, cfg)
		if err != nil {
			ticker.Stop()
			return err
		}
		go func() { serverErr <- srv.ListenAndServe(ctx, server.Addr(port)) }()
	}

	pterm.Success.Println(sym.Pulse + " Pulse daemon started")
	pterm.Printfln("  Attributes: %v", cfg.Conversion.Attributes)
	pterm.Printfln("  Interval: %v", job.Interval())
	pterm.Printfln("  Scheduler tick: %v", tickerCfg.Interval)
	if !noServer {
		pterm.Printfln("  HTTP: http://localhost:%d", port)
	}
	pterm.Info.Println("Press Ctrl+C for graceful shutdown")

	var runErr error
	serverDone := noServer
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		serverDone = true
		stop()
	}

	pterm.Info.Println("Shutting down, waiting for a running pass to finish...")

	// Stop components in reverse order of startup
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warnw("Failed to stop config watcher", logger.FieldError, err)
		}
		am.SetGlobalWatcher(nil)
	}
	if !serverDone {
		runErr = <-serverErr
	}
	ticker.Stop()

	pterm.Success.Println(sym.Pulse + " Pulse daemon stopped")
	return runErr
}

// startConfigWatcher watches every config source so edits reach the running daemon.
// Returns nil when watching is unavailable.
func startConfigWatcher(ctx context.Context, a *app, ticker *schedule.Ticker) *am.ConfigWatcher {
	paths := am.ExistingConfigFiles()
	if dir := am.ConfigDir(); dir != "" {
		if err := os.MkdirAll(dir, am.DefaultDirPermissions); err == nil {
			paths = append(paths, filepath.Join(dir, "am.toml"), am.GetUIConfigPath())
		}
	}
	if len(paths) == 0 {
		return nil
	}

	watcher, err := am.NewConfigWatcher(paths...)
	if err != nil {
		logger.Warnw("Config watcher unavailable, edits need a restart", logger.FieldError, err)
		return nil
	}
	watcher.OnReload(a.onReload(ctx, ticker))
	am.SetGlobalWatcher(watcher)
	watcher.Start()
	return watcher
}

// newServer wires the HTTP admin API over a
func newServer(a *app, rescheduler server.Rescheduler, cfg *am.Config) (*server.Server, error) {
	srv, err := server.New(server.Dependencies{
		Runner:               a.executor,
		Executions:           a.executions,
		Events:               a.events,
		Rescheduler:          rescheduler,
		Config:               a,
		TriggerRatePerMinute: cfg.Server.TriggerRatePerMinute,
		Logger:               logger.ComponentLogger("server"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create server")
	}
	return srv, nil
}
