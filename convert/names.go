package convert

import (
	"strings"

	"github.com/teranos/attrmigrate/catalog"
)

// NormalizeNames trims the configured attribute names and drops blanks and
// case-insensitive duplicates, keeping the first spelling seen.
func NormalizeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

// distinct returns values with exact duplicates removed, in first-seen order
func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// mergeTerms appends the newly resolved terms to those of a global attribute
// the entry already carries, skipping terms it already has.
func mergeTerms(prior catalog.Attribute, termIDs []int64, values []string) ([]int64, []string) {
	ids := append([]int64(nil), prior.TermIDs...)
	names := append([]string(nil), prior.Options...)
	have := make(map[int64]bool, len(ids))
	for _, id := range ids {
		have[id] = true
	}
	for i, id := range termIDs {
		if have[id] {
			continue
		}
		have[id] = true
		ids = append(ids, id)
		names = append(names, values[i])
	}
	return ids, names
}
