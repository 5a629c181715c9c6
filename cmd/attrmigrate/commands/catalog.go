package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/attrmigrate/catalog"
	"github.com/teranos/attrmigrate/display"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/sym"
)

// CatalogCmd seeds and inspects catalog entries
var CatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: sym.IX + " Seed and inspect catalog entries",
	Long: `Seed and inspect catalog entries.

Import files hold a list of entries with local attributes, as JSON or YAML:

  - sku: TS-1
    title: T-Shirt
    attributes:
      - name: Color
        options: [Red, Blue]

Examples:
  attrmigrate catalog import seed.yaml
  attrmigrate catalog show 1`,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create entries from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogImport,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <entry-id>",
	Short: "Show one entry and its attributes",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogShow,
}

func init() {
	CatalogCmd.AddCommand(catalogImportCmd)
	CatalogCmd.AddCommand(catalogShowCmd)
}

// parseImportFile decodes records by extension: .yaml/.yml as YAML, anything else as JSON
func parseImportFile(path string, data []byte) ([]catalog.ImportRecord, error) {
	var records []catalog.ImportRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, errors.Wrapf(err, "failed to parse YAML %s", path)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&records); err != nil {
			return nil, errors.Wrapf(err, "failed to parse JSON %s", path)
		}
	}
	if len(records) == 0 {
		return nil, errors.NewInvalidRequestError("%s holds no entries", path)
	}
	return records, nil
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}
	records, err := parseImportFile(args[0], data)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, dbPathFlag(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.catalog.ImportEntries(cmd.Context(), records)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{"ids": ids})
	}
	pterm.Success.Printfln("Imported %d entries (ids %d..%d)", len(ids), ids[0], ids[len(ids)-1])
	return nil
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.NewInvalidRequestError("entry id must be a number, got %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, dbPathFlag(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.catalog.LoadEntry(cmd.Context(), id)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), entry)
	}
	return display.Entry(cmd.OutOrStdout(), entry)
}
