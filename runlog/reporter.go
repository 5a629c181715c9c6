package runlog

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/logger"
)

// Reporter logs pass events and accumulates the pass summary.
// Events are also persisted when a Store is attached and the context carries an execution id.
type Reporter struct {
	mu        sync.Mutex
	logger    *zap.SugaredLogger
	store     *Store
	summary   Summary
	converted map[int64]bool
}

// NewReporter creates a reporter. store may be nil.
func NewReporter(log *zap.SugaredLogger, store *Store) *Reporter {
	if log == nil {
		log = logger.ComponentLogger("runlog")
	}
	return &Reporter{
		logger:    log,
		store:     store,
		converted: make(map[int64]bool),
	}
}

// EntryScanned counts one visited entry
func (r *Reporter) EntryScanned() {
	r.mu.Lock()
	r.summary.EntriesScanned++
	r.mu.Unlock()
}

// Record logs ev, updates the counters and persists it if possible
func (r *Reporter) Record(ctx context.Context, ev Event) {
	r.count(ev)

	log := logger.LoggerFromContext(ctx, r.logger)
	fields := eventFields(ev)
	switch ev.Kind {
	case KindSkip:
		log.Debugw(ev.Message, fields...)
		return
	case KindError:
		log.Errorw(ev.Message, fields...)
	default:
		log.Infow(ev.Message, fields...)
	}

	if r.store == nil {
		return
	}
	executionID := logger.ExecutionIDFromContext(ctx)
	if executionID == "" {
		return
	}
	if err := r.store.Append(ctx, executionID, ev); err != nil {
		log.Warnw("Failed to persist run event", logger.FieldError, err)
	}
}

// Finish marks the pass as having run to completion
func (r *Reporter) Finish() {
	r.mu.Lock()
	r.summary.Success = true
	r.mu.Unlock()
}

// Summary returns a snapshot of the accumulated counts
func (r *Reporter) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

func (r *Reporter) count(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case KindTaxonomyCreated:
		r.summary.TaxonomiesCreated++
	case KindTaxonomyReused:
		r.summary.TaxonomiesReused++
	case KindTermCreated:
		r.summary.TermsCreated++
	case KindTermReused:
		r.summary.TermsReused++
	case KindEntryConverted:
		r.summary.AttributesConverted++
		if !r.converted[ev.EntryID] {
			r.converted[ev.EntryID] = true
			r.summary.EntriesConverted++
		}
	case KindError:
		r.summary.Errors++
	}
}

func eventFields(ev Event) []interface{} {
	fields := []interface{}{"event", string(ev.Kind)}
	if ev.EntryID != 0 {
		fields = append(fields, logger.FieldEntryID, ev.EntryID)
	}
	if ev.Attribute != "" {
		fields = append(fields, logger.FieldAttribute, ev.Attribute)
	}
	if ev.Taxonomy != "" {
		fields = append(fields, logger.FieldTaxonomy, ev.Taxonomy)
	}
	if ev.TaxonomyID != 0 {
		fields = append(fields, logger.FieldTaxonomyID, ev.TaxonomyID)
	}
	if ev.Term != "" {
		fields = append(fields, logger.FieldTerm, ev.Term)
	}
	if ev.TermID != 0 {
		fields = append(fields, logger.FieldTermID, ev.TermID)
	}
	if ev.Err != nil {
		fields = append(fields, logger.FieldError, ev.Err.Error())
		if kind := errors.Kind(ev.Err); kind != "" {
			fields = append(fields, logger.FieldErrorType, kind)
		}
	}
	for k, v := range ev.Metadata {
		fields = append(fields, k, v)
	}
	return fields
}
