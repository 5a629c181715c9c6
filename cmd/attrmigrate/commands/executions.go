package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/attrmigrate/display"
	"github.com/teranos/attrmigrate/pulse/schedule"
	"github.com/teranos/attrmigrate/runlog"
)

// ExecutionsCmd inspects the pass execution history
var ExecutionsCmd = &cobra.Command{
	Use:     "executions",
	Aliases: []string{"exec"},
	Short:   "Inspect conversion pass history",
	Long: `Inspect conversion pass history.

Examples:
  attrmigrate executions ls                 # Latest passes
  attrmigrate executions ls --status failed # Failed passes only
  attrmigrate executions show PE_...        # One pass and its events`,
}

var executionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent passes, newest first",
	RunE:  runExecutionsLs,
}

var executionsShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one pass and the events it recorded",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecutionsShow,
}

func init() {
	executionsLsCmd.Flags().Int("limit", 20, "Maximum passes to list")
	executionsLsCmd.Flags().Int("offset", 0, "Passes to skip")
	executionsLsCmd.Flags().String("status", "", "Filter by status (running, completed, failed, skipped)")
	executionsLsCmd.Flags().String("trigger", "", "Filter by trigger (scheduled, manual)")

	ExecutionsCmd.AddCommand(executionsLsCmd)
	ExecutionsCmd.AddCommand(executionsShowCmd)
}

func runExecutionsLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, dbPathFlag(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	opts := schedule.ListOptions{}
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	opts.Offset, _ = cmd.Flags().GetInt("offset")
	opts.Status, _ = cmd.Flags().GetString("status")
	opts.Trigger, _ = cmd.Flags().GetString("trigger")

	executions, total, err := a.executions.ListExecutions(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{
			"executions": executions,
			"total":      total,
		})
	}
	return display.Executions(cmd.OutOrStdout(), executions, total)
}

// ExecutionDetail is one execution with its run events
type ExecutionDetail struct {
	Execution *schedule.Execution `json:"execution"`
	Events    []runlog.Record     `json:"events"`
}

func runExecutionsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, dbPathFlag(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	execution, err := a.executions.GetExecution(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	events, err := a.events.ListForExecution(cmd.Context(), execution.ID)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), ExecutionDetail{Execution: execution, Events: events})
	}
	out := cmd.OutOrStdout()
	if err := display.Executions(out, []*schedule.Execution{execution}, 1); err != nil {
		return err
	}
	return display.Events(out, events)
}
