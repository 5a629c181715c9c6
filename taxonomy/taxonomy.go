// Package taxonomy is the term registry: global attribute taxonomies and
// their terms, with term identity shared across catalog entries.
package taxonomy

import (
	"context"
	"time"
)

// Attribute taxonomy settings
const (
	TypeSelect       = "select"
	OrderByMenuOrder = "menu_order"
)

// Taxonomy is a catalog-wide, named classification
type Taxonomy struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"` // slug, unique
	Label     string    `json:"label"`
	Type      string    `json:"type"`
	OrderBy   string    `json:"order_by"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the term namespace of the taxonomy ("pa_" + slug)
func (t Taxonomy) Key() string {
	return KeyPrefix + t.Name
}

// Options are the settings a taxonomy is created with
type Options struct {
	Type    string
	OrderBy string
	Public  bool
}

// DefaultOptions returns the settings used for converted attributes:
// single-select, manual ordering, public.
func DefaultOptions() Options {
	return Options{Type: TypeSelect, OrderBy: OrderByMenuOrder, Public: true}
}

// Term is one value within a taxonomy
type Term struct {
	ID        int64     `json:"id"`
	Taxonomy  string    `json:"taxonomy"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry is the taxonomy store the conversion engine works against.
//
// TaxonomyExists looks taxonomies up by slug. TermExists matches term
// names exactly (case-sensitive) within the taxonomy key. CreateTerm must be
// idempotent per (taxonomy, value): a value that already exists yields its
// existing id. CreateTaxonomy is idempotent per slug and reports created=false
// when the slug was already taken, possibly by another process.
type Registry interface {
	TaxonomyExists(ctx context.Context, name string) (int64, bool, error)
	CreateTaxonomy(ctx context.Context, label, slug string, opts Options) (id int64, created bool, err error)
	RegisterObjectType(ctx context.Context, taxonomy, objectType string) error
	TermExists(ctx context.Context, value, taxonomy string) (int64, bool, error)
	CreateTerm(ctx context.Context, value, taxonomy string) (int64, error)
	InvalidateTaxonomyCache()
}
