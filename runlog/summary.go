package runlog

import "fmt"

// SuccessMessage is reported whenever a pass runs to completion
const SuccessMessage = "Attribute conversion completed successfully!"

// Summary is the aggregate result of one pass
type Summary struct {
	Success             bool `json:"success"`
	EntriesScanned      int  `json:"entries_scanned"`
	EntriesConverted    int  `json:"entries_converted"`
	AttributesConverted int  `json:"attributes_converted"`
	TaxonomiesCreated   int  `json:"taxonomies_created"`
	TaxonomiesReused    int  `json:"taxonomies_reused"`
	TermsCreated        int  `json:"terms_created"`
	TermsReused         int  `json:"terms_reused"`
	Errors              int  `json:"errors"`
}

// Message is the operator-facing result text.
// Per-item errors do not change it; they show up in the counts.
func (s Summary) Message() string {
	if !s.Success {
		return "Attribute conversion did not complete"
	}
	return SuccessMessage
}

// String is the one-line form stored on execution records
func (s Summary) String() string {
	return fmt.Sprintf(
		"scanned=%d converted_entries=%d converted_attributes=%d taxonomies_created=%d taxonomies_reused=%d terms_created=%d terms_reused=%d errors=%d",
		s.EntriesScanned, s.EntriesConverted, s.AttributesConverted,
		s.TaxonomiesCreated, s.TaxonomiesReused, s.TermsCreated, s.TermsReused, s.Errors,
	)
}
