// Package display renders command output for humans (pterm) or machines (JSON).
package display

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// OutputEnv selects JSON output when set to "json"
const OutputEnv = "ATTRMIGRATE_OUTPUT"

// ShouldOutputJSON determines if a command should output JSON based on flags and environment
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return os.Getenv(OutputEnv) == "json"
	}

	// Check if --json flag was explicitly set on the command
	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	// Check global --json flag
	if globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json"); globalFlag {
		return true
	}

	return os.Getenv(OutputEnv) == "json"
}

// OutputJSON marshals and prints JSON using display.MarshalJSON
func OutputJSON(w io.Writer, v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
