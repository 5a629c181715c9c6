package convert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/attrmigrate/catalog"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/logger"
	"github.com/teranos/attrmigrate/runlog"
	"github.com/teranos/attrmigrate/taxonomy"
)

// Options configure an Engine
type Options struct {
	// ItemType new taxonomies are registered for (default "product")
	ItemType string
	Logger   *zap.SugaredLogger
	// RunLog persists pass events; nil keeps them in the log only
	RunLog *runlog.Store
}

// Engine runs conversion passes over the catalog.
// At most one pass runs per engine at a time.
type Engine struct {
	mu          sync.Mutex
	registry    taxonomy.Registry
	store       catalog.Store
	provisioner *Provisioner
	runlog      *runlog.Store
	logger      *zap.SugaredLogger
}

// target is a configured attribute whose taxonomy is in place
type target struct {
	name       string
	localKey   string
	globalKey  string
	taxonomyID int64
}

// NewEngine creates an engine over a term registry and a catalog
func NewEngine(registry taxonomy.Registry, store catalog.Store, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("convert")
	}
	return &Engine{
		registry:    registry,
		store:       store,
		provisioner: NewProvisioner(registry, opts.ItemType, log),
		runlog:      opts.RunLog,
		logger:      log,
	}
}

// RunPass converts the local attributes named in attributeNames on every
// catalog entry into their global form.
//
// Per-item failures are reported in the summary and never abort the pass.
// Cancelling ctx does not stop a pass once it has started. The only error
// returned is ErrPassInProgress, when another pass holds the engine.
func (e *Engine) RunPass(ctx context.Context, attributeNames []string) (*runlog.Summary, error) {
	if !e.mu.TryLock() {
		return nil, errors.WithHint(errors.ErrPassInProgress, "wait for the running pass to finish")
	}
	defer e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	log := logger.LoggerFromContext(ctx, e.logger)
	rep := runlog.NewReporter(e.logger, e.runlog)
	start := time.Now()

	names := NormalizeNames(attributeNames)
	if len(names) == 0 {
		log.Warnw("No attributes configured for conversion; nothing to do",
			logger.FieldErrorType, errors.Kind(errors.ErrConfiguration))
		rep.Finish()
		summary := rep.Summary()
		return &summary, nil
	}

	targets := e.provision(ctx, rep, names)
	if len(targets) > 0 {
		e.scan(ctx, rep, targets)
	}

	rep.Finish()
	summary := rep.Summary()
	log.Infow("Conversion pass finished",
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
		"entries_scanned", summary.EntriesScanned,
		"entries_converted", summary.EntriesConverted,
		"terms_created", summary.TermsCreated,
		"terms_reused", summary.TermsReused,
		"errors", summary.Errors)
	return &summary, nil
}

// provision ensures a taxonomy per name; names that fail are left out.
// Each taxonomy key has one target: a later name with the same slug as an
// earlier one is reported and left out.
func (e *Engine) provision(ctx context.Context, rep *runlog.Reporter, names []string) []target {
	targets := make([]target, 0, len(names))
	claimed := make(map[string]string, len(names))
	for _, name := range names {
		key := taxonomy.Key(name)
		if owner, ok := claimed[key]; ok {
			rep.Record(ctx, runlog.Event{
				Kind:      runlog.KindError,
				Message:   "Attribute shares its taxonomy with another configured attribute; excluded from this pass",
				Attribute: name,
				Taxonomy:  key,
				Err: errors.WithHintf(
					errors.Mark(errors.Newf("attribute %q maps to %s, already used by %q", name, key, owner), errors.ErrConfiguration),
					"rename or remove %q in conversion.attributes", name),
			})
			continue
		}

		id, created, err := e.provisioner.EnsureTaxonomy(ctx, name)
		if err != nil {
			rep.Record(ctx, runlog.Event{
				Kind:      runlog.KindError,
				Message:   "Taxonomy could not be ensured; attribute excluded from this pass",
				Attribute: name,
				Taxonomy:  key,
				Err:       err,
			})
			continue
		}

		kind, msg := runlog.KindTaxonomyReused, "Reusing attribute taxonomy"
		if created {
			kind, msg = runlog.KindTaxonomyCreated, "Created attribute taxonomy"
		}
		rep.Record(ctx, runlog.Event{Kind: kind, Message: msg, Attribute: name, Taxonomy: key, TaxonomyID: id})
		claimed[key] = name

		targets = append(targets, target{
			name:       name,
			localKey:   catalog.NormalizeKey(name),
			globalKey:  key,
			taxonomyID: id,
		})
	}
	return targets
}

// scan visits every entry of a snapshot of the catalog
func (e *Engine) scan(ctx context.Context, rep *runlog.Reporter, targets []target) {
	ids, err := e.store.ListEntryIDs(ctx)
	if err != nil {
		rep.Record(ctx, runlog.Event{
			Kind:    runlog.KindError,
			Message: "Failed to enumerate catalog entries",
			Err:     errors.Mark(err, errors.ErrEntryLoad),
		})
		return
	}

	for _, id := range ids {
		rep.EntryScanned()
		entry, err := e.store.LoadEntry(ctx, id)
		if err != nil {
			rep.Record(ctx, runlog.Event{
				Kind:    runlog.KindError,
				Message: "Failed to load catalog entry",
				EntryID: id,
				Err:     errors.Mark(err, errors.ErrEntryLoad),
			})
			continue
		}

		for _, t := range targets {
			e.convert(ctx, rep, entry, t)
		}
	}
}

// convert rewrites one attribute of one entry. entry is updated in place
// only once the save succeeded.
func (e *Engine) convert(ctx context.Context, rep *runlog.Reporter, entry *catalog.Entry, t target) {
	attr, ok := entry.Attribute(t.localKey)
	if !ok {
		rep.Record(ctx, runlog.Event{Kind: runlog.KindSkip, Message: "Attribute absent", EntryID: entry.ID, Attribute: t.localKey})
		return
	}
	if attr.IsTaxonomy() {
		rep.Record(ctx, runlog.Event{Kind: runlog.KindSkip, Message: "Attribute already global", EntryID: entry.ID, Attribute: t.localKey})
		return
	}

	values := distinct(attr.Options)
	logger.LoggerFromContext(ctx, e.logger).Debugw("Converting attribute",
		logger.FieldEntryID, entry.ID,
		logger.FieldLocalKey, t.localKey,
		logger.FieldGlobalKey, t.globalKey,
		logger.FieldValues, values,
		"attribute_keys", entry.Keys())

	termIDs := make([]int64, 0, len(values))
	resolved := make([]string, 0, len(values))
	for _, value := range values {
		termID, created, err := e.resolveTerm(ctx, value, t.globalKey)
		if err != nil {
			rep.Record(ctx, runlog.Event{
				Kind:      runlog.KindError,
				Message:   "Term creation failed; value skipped",
				EntryID:   entry.ID,
				Attribute: t.localKey,
				Taxonomy:  t.globalKey,
				Term:      value,
				Err:       err,
			})
			continue
		}

		kind, msg := runlog.KindTermReused, "Reusing term"
		if created {
			kind, msg = runlog.KindTermCreated, "Created term"
		}
		rep.Record(ctx, runlog.Event{
			Kind:     kind,
			Message:  msg,
			EntryID:  entry.ID,
			Taxonomy: t.globalKey,
			Term:     value,
			TermID:   termID,
		})
		termIDs = append(termIDs, termID)
		resolved = append(resolved, value)
	}

	if prior, ok := entry.Attribute(t.globalKey); ok && prior.IsTaxonomy() {
		termIDs, resolved = mergeTerms(prior, termIDs, resolved)
	}

	if err := e.store.SetEntryTerms(ctx, entry.ID, t.globalKey, termIDs); err != nil {
		rep.Record(ctx, runlog.Event{
			Kind:      runlog.KindError,
			Message:   "Failed to associate terms; local attribute kept",
			EntryID:   entry.ID,
			Attribute: t.localKey,
			Taxonomy:  t.globalKey,
			Err:       errors.Mark(err, errors.ErrEntrySave),
		})
		return
	}

	next := entry.Clone()
	next.RemoveAttribute(t.localKey)
	next.SetAttribute(t.globalKey, catalog.NewGlobal(t.globalKey, t.taxonomyID, termIDs, resolved))
	if err := e.store.SaveEntry(ctx, next); err != nil {
		rep.Record(ctx, runlog.Event{
			Kind:      runlog.KindError,
			Message:   "Failed to save converted entry",
			EntryID:   entry.ID,
			Attribute: t.localKey,
			Taxonomy:  t.globalKey,
			Err:       errors.Mark(err, errors.ErrEntrySave),
		})
		return
	}
	*entry = *next

	rep.Record(ctx, runlog.Event{
		Kind:       runlog.KindEntryConverted,
		Message:    "Converted attribute to global",
		EntryID:    entry.ID,
		Attribute:  t.localKey,
		Taxonomy:   t.globalKey,
		TaxonomyID: t.taxonomyID,
		Metadata:   map[string]any{"terms": len(termIDs)},
	})
}

// resolveTerm is get-or-create for value in taxonomy
func (e *Engine) resolveTerm(ctx context.Context, value, taxonomyKey string) (id int64, created bool, err error) {
	id, ok, err := e.registry.TermExists(ctx, value, taxonomyKey)
	if err != nil {
		return 0, false, errors.Mark(errors.Wrapf(err, "failed to look up term %q", value), errors.ErrTermCreation)
	}
	if ok {
		return id, false, nil
	}
	id, err = e.registry.CreateTerm(ctx, value, taxonomyKey)
	if err != nil {
		return 0, false, errors.Mark(errors.Wrapf(err, "failed to create term %q in %s", value, taxonomyKey), errors.ErrTermCreation)
	}
	return id, true, nil
}
