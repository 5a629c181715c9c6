// Package catalog holds catalog entries and their attribute mappings.
package catalog

import "strings"

// Kind tags an attribute as entry-owned (local) or taxonomy-backed (global)
type Kind string

const (
	KindLocal  Kind = "local"
	KindGlobal Kind = "global"
)

// Attribute is one entry of an entry's attribute mapping.
//
// A local attribute carries plain Options only. A global attribute references
// a taxonomy by TaxonomyID, its TermIDs, and the term display values in Options.
type Attribute struct {
	Kind       Kind     `json:"kind"`
	Name       string   `json:"name"`
	Options    []string `json:"options"`
	TaxonomyID int64    `json:"taxonomy_id,omitempty"`
	TermIDs    []int64  `json:"term_ids,omitempty"`
	Position   int      `json:"position"`
	Visible    bool     `json:"visible"`
	Variation  bool     `json:"variation"`
}

// NewLocal builds a visible local attribute
func NewLocal(name string, values ...string) Attribute {
	return Attribute{
		Kind:    KindLocal,
		Name:    name,
		Options: append([]string(nil), values...),
		Visible: true,
	}
}

// NewGlobal builds a global attribute referencing taxonomyID: position 0,
// visible, not used for variations.
func NewGlobal(name string, taxonomyID int64, termIDs []int64, values []string) Attribute {
	return Attribute{
		Kind:       KindGlobal,
		Name:       name,
		Options:    append([]string(nil), values...),
		TaxonomyID: taxonomyID,
		TermIDs:    append([]int64(nil), termIDs...),
		Position:   0,
		Visible:    true,
		Variation:  false,
	}
}

// IsTaxonomy reports whether the attribute is taxonomy-backed
func (a Attribute) IsTaxonomy() bool {
	return a.Kind == KindGlobal
}

// NormalizeKey is the attribute-mapping key for an attribute name
func NormalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
