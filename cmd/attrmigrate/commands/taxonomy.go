package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/attrmigrate/display"
	"github.com/teranos/attrmigrate/sym"
)

// TaxonomyCmd inspects the term registry
var TaxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: sym.Taxonomy + " Inspect global attribute taxonomies and their terms",
}

var taxonomyLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List taxonomies with their term counts",
	RunE:  runTaxonomyLs,
}

var taxonomyTermsCmd = &cobra.Command{
	Use:   "terms <taxonomy-key>",
	Short: "List the terms of one taxonomy (e.g. pa_color)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaxonomyTerms,
}

func init() {
	TaxonomyCmd.AddCommand(taxonomyLsCmd)
	TaxonomyCmd.AddCommand(taxonomyTermsCmd)
}

func runTaxonomyLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, dbPathFlag(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	taxonomies, err := a.registry.ListTaxonomies(cmd.Context())
	if err != nil {
		return err
	}
	counts := make(map[string]int, len(taxonomies))
	for _, t := range taxonomies {
		terms, err := a.registry.ListTerms(cmd.Context(), t.Key())
		if err != nil {
			return err
		}
		counts[t.Key()] = len(terms)
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{
			"taxonomies":  taxonomies,
			"term_counts": counts,
		})
	}
	return display.Taxonomies(cmd.OutOrStdout(), taxonomies, counts)
}

func runTaxonomyTerms(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, dbPathFlag(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	terms, err := a.registry.ListTerms(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), terms)
	}
	return display.Terms(cmd.OutOrStdout(), terms)
}
