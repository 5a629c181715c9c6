// Package convert migrates local catalog attributes into global taxonomies.
package convert

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/attrmigrate/catalog"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/logger"
	"github.com/teranos/attrmigrate/taxonomy"
)

// Provisioner makes sure a global taxonomy exists for each configured attribute name
type Provisioner struct {
	registry taxonomy.Registry
	itemType string
	logger   *zap.SugaredLogger
}

// NewProvisioner creates a provisioner registering new taxonomies for itemType
func NewProvisioner(registry taxonomy.Registry, itemType string, log *zap.SugaredLogger) *Provisioner {
	if itemType == "" {
		itemType = catalog.DefaultItemType
	}
	if log == nil {
		log = logger.ComponentLogger("convert")
	}
	return &Provisioner{registry: registry, itemType: itemType, logger: log}
}

// EnsureTaxonomy returns the id of the taxonomy for name, creating it if absent.
// created reports whether this call created it. Failures are marked ErrTaxonomyCreation.
//
// The registry's taxonomy listing is invalidated here after a creation attempt and nowhere else.
func (p *Provisioner) EnsureTaxonomy(ctx context.Context, name string) (id int64, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false, errors.Mark(errors.New("attribute name is empty"), errors.ErrConfiguration)
	}
	slug := taxonomy.Slug(name)
	if slug == "" {
		return 0, false, errors.Mark(
			errors.WithHint(errors.Newf("attribute name %q has no usable characters", name),
				"attribute names need at least one letter or digit"),
			errors.ErrTaxonomyCreation)
	}
	key := taxonomy.KeyPrefix + slug

	id, ok, err := p.registry.TaxonomyExists(ctx, slug)
	if err != nil {
		return 0, false, errors.Mark(errors.Wrapf(err, "failed to look up taxonomy %s", key), errors.ErrTaxonomyCreation)
	}

	if !ok {
		id, created, err = p.registry.CreateTaxonomy(ctx, name, slug, taxonomy.DefaultOptions())
		if err != nil {
			return 0, false, errors.Mark(errors.Wrapf(err, "failed to create taxonomy %s", key), errors.ErrTaxonomyCreation)
		}
		// A miss here means the listing was stale either way
		p.registry.InvalidateTaxonomyCache()
		if created {
			p.logger.Infow("Created attribute taxonomy",
				logger.FieldTaxonomy, key,
				logger.FieldTaxonomyID, id,
				logger.FieldAttribute, name)
		} else {
			p.logger.Debugw("Attribute taxonomy already created elsewhere",
				logger.FieldTaxonomy, key,
				logger.FieldTaxonomyID, id)
		}
	}

	// RegisterObjectType is idempotent and runs on reuse too
	if err := p.registry.RegisterObjectType(ctx, key, p.itemType); err != nil {
		return 0, created, errors.Mark(errors.Wrapf(err, "failed to register %s for %s", key, p.itemType), errors.ErrTaxonomyCreation)
	}

	return id, created, nil
}
