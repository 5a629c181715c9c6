package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/attrmigrate/cmd/attrmigrate/commands"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/logger"
)

var rootCmd = &cobra.Command{
	Use:   "attrmigrate",
	Short: "attrmigrate - convert local catalog attributes into global taxonomies",
	Long: `attrmigrate converts per-entry (local) attributes of catalog entries into
catalog-wide (global) taxonomy attributes, creating taxonomies and terms as
needed, once on demand or on a schedule.

Available commands:
  run        - Run one conversion pass now
  pulse      - Run passes on a schedule (daemon with HTTP admin API)
  server     - Serve the HTTP admin API only
  am         - Manage configuration (attributes, interval)
  executions - Inspect pass history
  catalog    - Seed and inspect catalog entries
  taxonomy   - Inspect taxonomies and terms

Examples:
  attrmigrate am set-attributes Color Size   # Choose attributes
  attrmigrate run                            # Convert them now
  attrmigrate pulse start                    # Convert every interval`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Print command output as JSON")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("db", "", "Database path (default database.path)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.ExecutionsCmd)
	rootCmd.AddCommand(commands.CatalogCmd)
	rootCmd.AddCommand(commands.TaxonomyCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	logger.Cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
