package catalog

import (
	"context"
	"sort"
	"time"
)

// DefaultItemType is the item type entries are created with and taxonomies are registered for
const DefaultItemType = "product"

// Entry is a product-like catalog record
type Entry struct {
	ID         int64                `json:"id"`
	SKU        string               `json:"sku"`
	Title      string               `json:"title"`
	ItemType   string               `json:"item_type"`
	Attributes map[string]Attribute `json:"attributes"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Attribute returns the attribute stored under the normalized form of key
func (e *Entry) Attribute(key string) (Attribute, bool) {
	a, ok := e.Attributes[NormalizeKey(key)]
	return a, ok
}

// SetAttribute installs a under the normalized form of key
func (e *Entry) SetAttribute(key string, a Attribute) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]Attribute)
	}
	e.Attributes[NormalizeKey(key)] = a
}

// RemoveAttribute deletes the attribute under the normalized form of key
func (e *Entry) RemoveAttribute(key string) {
	delete(e.Attributes, NormalizeKey(key))
}

// Keys returns the attribute keys in sorted order
func (e *Entry) Keys() []string {
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the entry
func (e *Entry) Clone() *Entry {
	c := *e
	c.Attributes = make(map[string]Attribute, len(e.Attributes))
	for k, a := range e.Attributes {
		a.Options = append([]string(nil), a.Options...)
		a.TermIDs = append([]int64(nil), a.TermIDs...)
		c.Attributes[k] = a
	}
	return &c
}

// Store is the catalog the conversion engine rewrites.
//
// SetEntryTerms replaces any prior association of the entry with terms of taxonomy.
type Store interface {
	ListEntryIDs(ctx context.Context) ([]int64, error)
	LoadEntry(ctx context.Context, id int64) (*Entry, error)
	SaveEntry(ctx context.Context, entry *Entry) error
	SetEntryTerms(ctx context.Context, id int64, taxonomy string, termIDs []int64) error
}
