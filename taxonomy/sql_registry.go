package taxonomy

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teranos/attrmigrate/errors"
)

const taxonomyListingKey = "attribute_taxonomies"

// SQLRegistry is the SQLite-backed Registry.
// The taxonomy listing is cached in memory until InvalidateTaxonomyCache is called.
type SQLRegistry struct {
	db    *sql.DB
	group singleflight.Group
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]Taxonomy // by slug; nil means not loaded
}

// NewSQLRegistry creates a registry over a migrated database
func NewSQLRegistry(db *sql.DB) *SQLRegistry {
	return &SQLRegistry{db: db, now: time.Now}
}

// ListTaxonomies returns all attribute taxonomies ordered by name
func (r *SQLRegistry) ListTaxonomies(ctx context.Context) ([]Taxonomy, error) {
	listing, err := r.listing(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Taxonomy, 0, len(listing))
	for _, t := range listing {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// TaxonomyExists looks a taxonomy up by name (normalized to its slug) in the cached listing
func (r *SQLRegistry) TaxonomyExists(ctx context.Context, name string) (int64, bool, error) {
	listing, err := r.listing(ctx)
	if err != nil {
		return 0, false, err
	}
	t, ok := listing[Slug(name)]
	if !ok {
		return 0, false, nil
	}
	return t.ID, true, nil
}

// CreateTaxonomy inserts a taxonomy. A taxonomy that already exists under slug
// is not duplicated; its id is returned with created=false.
// The cached listing is left as is; callers invalidate it.
func (r *SQLRegistry) CreateTaxonomy(ctx context.Context, label, slug string, opts Options) (int64, bool, error) {
	if slug == "" {
		return 0, false, errors.NewInvalidRequestError("taxonomy slug is empty (label %q)", label)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attribute_taxonomies (name, label, type, order_by, public, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, slug, label, opts.Type, opts.OrderBy, opts.Public, r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to insert taxonomy %s", slug)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to count inserted taxonomy %s", slug)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, "SELECT id FROM attribute_taxonomies WHERE name = ?", slug).Scan(&id); err != nil {
		return 0, false, errors.Wrapf(err, "failed to read back taxonomy %s", slug)
	}
	return id, inserted > 0, nil
}

// RegisterObjectType makes taxonomy queryable against entries of objectType
func (r *SQLRegistry) RegisterObjectType(ctx context.Context, taxonomy, objectType string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO taxonomy_object_types (taxonomy, object_type) VALUES (?, ?)",
		taxonomy, objectType)
	if err != nil {
		return errors.Wrapf(err, "failed to register %s for %s", taxonomy, objectType)
	}
	return nil
}

// ObjectTypes returns the item types taxonomy is registered for
func (r *SQLRegistry) ObjectTypes(ctx context.Context, taxonomy string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT object_type FROM taxonomy_object_types WHERE taxonomy = ? ORDER BY object_type", taxonomy)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query object types for %s", taxonomy)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, errors.Wrap(err, "failed to scan object type")
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// TermExists returns the id of the term named exactly value in taxonomy
func (r *SQLRegistry) TermExists(ctx context.Context, value, taxonomy string) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		"SELECT id FROM terms WHERE taxonomy = ? AND name = ?", taxonomy, value).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to look up term %q in %s", value, taxonomy)
	}
	return id, true, nil
}

// CreateTerm inserts value into taxonomy, or returns the id of the existing
// term with that exact value. The taxonomy must be a registered attribute taxonomy.
func (r *SQLRegistry) CreateTerm(ctx context.Context, value, taxonomy string) (int64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, errors.NewInvalidRequestError("empty term name in %s", taxonomy)
	}

	slug := strings.TrimPrefix(taxonomy, KeyPrefix)
	exists, err := r.hasTaxonomy(ctx, slug)
	if err != nil {
		return 0, err
	}
	if !exists || !strings.HasPrefix(taxonomy, KeyPrefix) {
		return 0, errors.NewNotFoundError("invalid taxonomy %s", taxonomy)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO terms (taxonomy, name, slug, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(taxonomy, name) DO NOTHING
	`, taxonomy, value, Slug(value), r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert term %q into %s", value, taxonomy)
	}

	id, ok, err := r.TermExists(ctx, value, taxonomy)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Newf("term %q missing from %s after insert", value, taxonomy)
	}
	return id, nil
}

// ListTerms returns the terms of taxonomy ordered by id
func (r *SQLRegistry) ListTerms(ctx context.Context, taxonomy string) ([]Term, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, taxonomy, name, slug, created_at FROM terms WHERE taxonomy = ? ORDER BY id", taxonomy)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query terms of %s", taxonomy)
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		var t Term
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Taxonomy, &t.Name, &t.Slug, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan term")
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// InvalidateTaxonomyCache drops the cached listing so the next lookup reloads it
func (r *SQLRegistry) InvalidateTaxonomyCache() {
	r.mu.Lock()
	r.cache = nil
	r.mu.Unlock()
	r.group.Forget(taxonomyListingKey)
}

// hasTaxonomy consults the cached listing, then the table, so a CreateTerm
// right after another process created the taxonomy still succeeds.
func (r *SQLRegistry) hasTaxonomy(ctx context.Context, slug string) (bool, error) {
	listing, err := r.listing(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := listing[slug]; ok {
		return true, nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM attribute_taxonomies WHERE name = ?)", slug).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check taxonomy %s", slug)
	}
	return exists, nil
}

// listing returns the cached taxonomy listing, loading it once if needed.
// Concurrent loads collapse into one query.
func (r *SQLRegistry) listing(ctx context.Context) (map[string]Taxonomy, error) {
	r.mu.RLock()
	cached := r.cache
	r.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := r.group.Do(taxonomyListingKey, func() (interface{}, error) {
		loaded, err := r.loadTaxonomies(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache = loaded
		r.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]Taxonomy), nil
}

func (r *SQLRegistry) loadTaxonomies(ctx context.Context) (map[string]Taxonomy, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, label, type, order_by, public, created_at
		FROM attribute_taxonomies
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list attribute taxonomies")
	}
	defer rows.Close()

	listing := make(map[string]Taxonomy)
	for rows.Next() {
		var t Taxonomy
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Name, &t.Label, &t.Type, &t.OrderBy, &t.Public, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan attribute taxonomy")
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		listing[t.Name] = t
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating attribute taxonomies")
	}
	return listing, nil
}
