package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/attrmigrate/display"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/pulse/schedule"
	"github.com/teranos/attrmigrate/runlog"
	"github.com/teranos/attrmigrate/sym"
)

// RunCmd runs one conversion pass in the foreground
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Convert + " Run one conversion pass now",
	Long: `Convert the configured local attributes of every catalog entry into
global taxonomy attributes, then print the pass summary.

The pass is recorded in the execution history like a scheduled one. It is
refused while another pass is running, in this or any other process.

Examples:
  attrmigrate run                       # Convert conversion.attributes
  attrmigrate run --attribute Color     # Convert only Color this time
  attrmigrate run --json                # Print execution and summary as JSON`,
	RunE: runConversion,
}

func init() {
	RunCmd.Flags().StringSlice("attribute", nil, "Attribute names to convert instead of conversion.attributes")
}

// RunResult is the JSON form of a manual run
type RunResult struct {
	Message   string              `json:"message"`
	Execution *schedule.Execution `json:"execution,omitempty"`
	Summary   *runlog.Summary     `json:"summary,omitempty"`
}

func runConversion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if override, _ := cmd.Flags().GetStringSlice("attribute"); len(override) > 0 {
		cfg.Conversion.Attributes = override
	}

	a, err := newApp(cfg, dbPathFlag(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	execution, summary, err := a.executor.Execute(cmd.Context(), schedule.TriggerManual)
	if errors.Is(err, errors.ErrPassInProgress) {
		pterm.Warning.Println("A conversion pass is already running, try again once it finishes")
		return err
	}
	if err != nil {
		return errors.Wrap(err, "conversion pass failed")
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), RunResult{
			Message:   summary.Message(),
			Execution: execution,
			Summary:   summary,
		})
	}
	if err := display.Summary(cmd.OutOrStdout(), summary); err != nil {
		return err
	}
	cmd.Printf("Execution: %s\n", execution.ID)
	return nil
}
