package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/attrmigrate/logger"
	"github.com/teranos/attrmigrate/pulse/schedule"
	"github.com/teranos/attrmigrate/server"
)

// ServerCmd serves the HTTP admin API without the scheduler
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the HTTP admin API without scheduling passes",
	Long: `Serve the HTTP admin API: manual trigger, execution history and
conversion settings. Interval changes are persisted to the schedule and
picked up by a running Pulse daemon.

Example:
  attrmigrate server --port 9000`,
	RunE: runServer,
}

func init() {
	ServerCmd.Flags().Int("port", 0, "HTTP port (default server.port)")
}

func runServer(cmd *cobra.Command, args []string) error {
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

	if _, err := a.jobs.EnsureJob(ctx, schedule.ConversionJobID, cfg.Conversion.IntervalSeconds); err != nil {
		return err
	}

	// Never started: used only to persist interval changes
	rescheduler := schedule.NewTicker(a.jobs, a.executor, schedule.DefaultTickerConfig(), logger.ComponentLogger("pulse.ticker"))

	srv, err := newServer(a, rescheduler, cfg)
	if err != nil {
		return err
	}

	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = cfg.Server.Port
	}
	pterm.Success.Printfln("Serving on http://localhost:%d (Ctrl+C to stop)", port)
	return srv.ListenAndServe(ctx, server.Addr(port))
}
