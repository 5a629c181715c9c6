package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/attrmigrate/catalog"
	"github.com/teranos/attrmigrate/pulse/schedule"
	"github.com/teranos/attrmigrate/runlog"
	"github.com/teranos/attrmigrate/taxonomy"
)

// Summary prints the outcome of a pass: the notice line followed by its counts
func Summary(w io.Writer, s *runlog.Summary) error {
	if s.Success {
		fmt.Fprint(w, pterm.Success.Sprintln(s.Message()))
	} else {
		fmt.Fprint(w, pterm.Error.Sprintln(s.Message()))
	}

	return table(w, pterm.TableData{
		{"Metric", "Count"},
		{"Entries scanned", strconv.Itoa(s.EntriesScanned)},
		{"Entries converted", strconv.Itoa(s.EntriesConverted)},
		{"Attributes converted", strconv.Itoa(s.AttributesConverted)},
		{"Taxonomies created", strconv.Itoa(s.TaxonomiesCreated)},
		{"Taxonomies reused", strconv.Itoa(s.TaxonomiesReused)},
		{"Terms created", strconv.Itoa(s.TermsCreated)},
		{"Terms reused", strconv.Itoa(s.TermsReused)},
		{"Errors", strconv.Itoa(s.Errors)},
	})
}

// Executions prints an execution history table
func Executions(w io.Writer, executions []*schedule.Execution, total int) error {
	if len(executions) == 0 {
		fmt.Fprint(w, pterm.Info.Sprintln("No executions recorded"))
		return nil
	}

	data := pterm.TableData{{"ID", "Trigger", "Status", "Started", "Duration", "Result"}}
	for _, e := range executions {
		duration := "-"
		if e.DurationMs != nil {
			duration = fmt.Sprintf("%dms", *e.DurationMs)
		}
		result := ""
		switch {
		case e.ErrorMessage != nil:
			result = *e.ErrorMessage
		case e.ResultSummary != nil:
			result = *e.ResultSummary
		}
		data = append(data, []string{e.ID, e.Trigger, e.Status, e.StartedAt, duration, result})
	}
	if err := table(w, data); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d of %d executions\n", len(executions), total)
	return nil
}

// Events prints the run events of one execution
func Events(w io.Writer, events []runlog.Record) error {
	if len(events) == 0 {
		fmt.Fprint(w, pterm.Info.Sprintln("No events recorded"))
		return nil
	}

	data := pterm.TableData{{"Time", "Level", "Kind", "Entry", "Attribute", "Term", "Message"}}
	for _, ev := range events {
		entry := ""
		if ev.EntryID != nil {
			entry = strconv.FormatInt(*ev.EntryID, 10)
		}
		message := ev.Message
		if errMsg, ok := ev.Metadata["error"].(string); ok && errMsg != "" {
			message += ": " + errMsg
		}
		data = append(data, []string{ev.Timestamp, ev.Level, string(ev.Kind), entry, ev.Attribute, ev.Term, message})
	}
	return table(w, data)
}

// Taxonomies prints the registered taxonomies with their term counts
func Taxonomies(w io.Writer, taxonomies []taxonomy.Taxonomy, termCounts map[string]int) error {
	if len(taxonomies) == 0 {
		fmt.Fprint(w, pterm.Info.Sprintln("No taxonomies registered"))
		return nil
	}

	data := pterm.TableData{{"ID", "Key", "Label", "Type", "Order by", "Terms"}}
	for _, t := range taxonomies {
		data = append(data, []string{
			strconv.FormatInt(t.ID, 10), t.Key(), t.Label, t.Type, t.OrderBy,
			strconv.Itoa(termCounts[t.Key()]),
		})
	}
	return table(w, data)
}

// Terms prints the terms of one taxonomy
func Terms(w io.Writer, terms []taxonomy.Term) error {
	data := pterm.TableData{{"ID", "Name", "Slug"}}
	for _, t := range terms {
		data = append(data, []string{strconv.FormatInt(t.ID, 10), t.Name, t.Slug})
	}
	return table(w, data)
}

// Entry prints one catalog entry and its attribute mapping
func Entry(w io.Writer, e *catalog.Entry) error {
	fmt.Fprint(w, pterm.DefaultSection.Sprintf("Entry %d: %s", e.ID, e.Title))
	fmt.Fprintf(w, "SKU: %s\nType: %s\n\n", e.SKU, e.ItemType)

	data := pterm.TableData{{"Key", "Kind", "Name", "Values", "Taxonomy", "Position"}}
	for _, key := range e.Keys() {
		a := e.Attributes[key]
		taxonomyID := ""
		if a.IsTaxonomy() {
			taxonomyID = strconv.FormatInt(a.TaxonomyID, 10)
		}
		data = append(data, []string{
			key, string(a.Kind), a.Name, strings.Join(a.Options, " | "), taxonomyID, strconv.Itoa(a.Position),
		})
	}
	return table(w, data)
}

func table(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
