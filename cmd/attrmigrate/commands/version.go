package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/attrmigrate/display"
	"github.com/teranos/attrmigrate/internal/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show attrmigrate version information",
	Long:  `Display the version, VCS commit and catalog schema version of the attrmigrate binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(cmd.OutOrStdout(), info)
		}
		cmd.Println(info.String())
		if info.BuildTime != "" {
			cmd.Printf("Built: %s\n", info.BuildTime)
		}
		cmd.Printf("Platform: %s\n", info.Platform)
		cmd.Printf("Go: %s\n", info.GoVersion)
		return nil
	},
}
