package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/attrmigrate/am"
	"github.com/teranos/attrmigrate/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage attrmigrate configuration",
	Long: `am - Manage attrmigrate configuration

Display and manage the attributes to convert and the pass interval.

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/attrmigrate/am.toml)
3. User config (~/.attrmigrate/am.toml)
4. Project config (./am.toml, searched upwards)
5. Saved settings (~/.attrmigrate/am_from_ui.toml, written by set-* and the HTTP API)
6. Environment variables (ATTRMIGRATE_* prefix)

Examples:
  attrmigrate am show                      # Show current configuration
  attrmigrate am show --format json        # Show configuration in JSON format
  attrmigrate am get conversion.attributes # Get specific config value
  attrmigrate am set-attributes Color Size # Choose attributes to convert
  attrmigrate am set-interval 600          # Run every 10 minutes`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current attrmigrate configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, conversion.interval_seconds)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate the configuration and list the values that will be replaced by defaults",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each setting comes from",
	RunE:  runAmWhere,
}

var amSetAttributesCmd = &cobra.Command{
	Use:   "set-attributes <name>...",
	Short: "Set the attribute names to convert",
	Long: `Set the attribute names to convert, in order.

Names may be given as separate arguments or as one argument with one name per
line. Markup is stripped, whitespace collapsed, empty lines and
case-insensitive duplicates dropped. Pass no names to clear the list.`,
	RunE: runAmSetAttributes,
}

var amSetIntervalCmd = &cobra.Command{
	Use:   "set-interval <seconds>",
	Short: "Set the seconds between scheduled passes",
	Long: `Set the seconds between scheduled passes. A running Pulse daemon picks
the change up and runs the next pass right away.`,
	Args: cobra.ExactArgs(1),
	RunE: runAmSetInterval,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amSetAttributesCmd)
	AmCmd.AddCommand(amSetIntervalCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Fprintf(out, "# attrmigrate configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Fprintf(out, "# attrmigrate configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	loaded, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := copyConfig(loaded)
	for _, w := range cfg.Sanitize() {
		pterm.Warning.Println(w.Error())
	}

	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	data := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range am.Introspect() {
		data = append(data, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// attributeArgs accepts names as arguments or as one newline-separated argument
func attributeArgs(args []string) []string {
	if len(args) == 1 && strings.ContainsAny(args[0], "\r\n") {
		return am.ParseAttributeList(args[0])
	}
	return am.SanitizeAttributeList(args)
}

func runAmSetAttributes(cmd *cobra.Command, args []string) error {
	names := attributeArgs(args)
	if err := am.UpdateConversionAttributes(names); err != nil {
		return err
	}

	if len(names) == 0 {
		pterm.Warning.Println("Attribute list cleared, passes will convert nothing")
		return nil
	}
	pterm.Success.Printfln("Attributes to convert: %s", strings.Join(names, ", "))
	pterm.Info.Printfln("Saved to %s", am.GetUIConfigPath())
	return nil
}

func runAmSetInterval(cmd *cobra.Command, args []string) error {
	seconds, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("interval must be a whole number of seconds: %w", err)
	}
	if err := am.UpdateConversionInterval(seconds); err != nil {
		return err
	}

	pterm.Success.Printfln("Conversion passes run every %ds", seconds)
	pterm.Info.Printfln("Saved to %s", am.GetUIConfigPath())
	return nil
}
