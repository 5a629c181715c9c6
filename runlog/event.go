// Package runlog records the outcomes of a conversion pass and summarizes them.
package runlog

// EventKind names one kind of pass outcome
type EventKind string

const (
	KindTaxonomyCreated EventKind = "taxonomy_created"
	KindTaxonomyReused  EventKind = "taxonomy_reused"
	KindEntryConverted  EventKind = "entry_converted"
	KindTermCreated     EventKind = "term_created"
	KindTermReused      EventKind = "term_reused"
	KindError           EventKind = "error"
	// KindSkip is logged at debug level and never persisted
	KindSkip EventKind = "skip"
)

// Event is one outcome observed during a pass
type Event struct {
	Kind       EventKind
	Message    string
	EntryID    int64
	Attribute  string
	Taxonomy   string
	TaxonomyID int64
	Term       string
	TermID     int64
	Err        error
	Metadata   map[string]any
}

// Level is the log level an event is recorded at
func (e Event) Level() string {
	switch e.Kind {
	case KindError:
		return "error"
	case KindSkip:
		return "debug"
	default:
		return "info"
	}
}
