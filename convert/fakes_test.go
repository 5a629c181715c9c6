package convert

import (
	"context"
	"sort"
	"sync"

	"github.com/teranos/attrmigrate/catalog"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/taxonomy"
)

type fakeTerm struct {
	id       int64
	taxonomy string
	name     string
}

// fakeRegistry is an in-memory taxonomy.Registry with failure injection
type fakeRegistry struct {
	mu            sync.Mutex
	nextID        int64
	taxonomies    map[string]int64 // slug -> id
	labels        map[string]string
	objectTypes   map[string][]string
	terms         []fakeTerm
	invalidations int

	failTaxonomy map[string]bool // slug
	failTerm     map[string]bool // value
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		taxonomies:   make(map[string]int64),
		labels:       make(map[string]string),
		objectTypes:  make(map[string][]string),
		failTaxonomy: make(map[string]bool),
		failTerm:     make(map[string]bool),
	}
}

func (r *fakeRegistry) TaxonomyExists(_ context.Context, name string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.taxonomies[taxonomy.Slug(name)]
	return id, ok, nil
}

func (r *fakeRegistry) CreateTaxonomy(_ context.Context, label, slug string, _ taxonomy.Options) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTaxonomy[slug] {
		return 0, false, errors.New("taxonomy storage unavailable")
	}
	if id, ok := r.taxonomies[slug]; ok {
		return id, false, nil
	}
	r.nextID++
	r.taxonomies[slug] = r.nextID
	r.labels[slug] = label
	return r.nextID, true, nil
}

func (r *fakeRegistry) RegisterObjectType(_ context.Context, key, objectType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.objectTypes[key] {
		if t == objectType {
			return nil
		}
	}
	r.objectTypes[key] = append(r.objectTypes[key], objectType)
	return nil
}

func (r *fakeRegistry) TermExists(_ context.Context, value, key string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.terms {
		if t.taxonomy == key && t.name == value {
			return t.id, true, nil
		}
	}
	return 0, false, nil
}

func (r *fakeRegistry) CreateTerm(_ context.Context, value, key string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTerm[value] {
		return 0, errors.Newf("term %q rejected", value)
	}
	for _, t := range r.terms {
		if t.taxonomy == key && t.name == value {
			return t.id, nil
		}
	}
	r.nextID++
	r.terms = append(r.terms, fakeTerm{id: r.nextID, taxonomy: key, name: value})
	return r.nextID, nil
}

func (r *fakeRegistry) InvalidateTaxonomyCache() {
	r.mu.Lock()
	r.invalidations++
	r.mu.Unlock()
}

func (r *fakeRegistry) termNames(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, t := range r.terms {
		if t.taxonomy == key {
			names = append(names, t.name)
		}
	}
	return names
}

func (r *fakeRegistry) termID(key, name string) int64 {
	id, _, _ := r.TermExists(context.Background(), name, key)
	return id
}

// fakeStore is an in-memory catalog.Store
type fakeStore struct {
	mu       sync.Mutex
	entries  map[int64]*catalog.Entry
	terms    map[int64]map[string][]int64
	saves    int
	failSave map[int64]bool

	// listing blocks on release once entered is closed, when set
	entered chan struct{}
	release chan struct{}
}

func newFakeStore(entries ...*catalog.Entry) *fakeStore {
	s := &fakeStore{
		entries:  make(map[int64]*catalog.Entry),
		terms:    make(map[int64]map[string][]int64),
		failSave: make(map[int64]bool),
	}
	for _, e := range entries {
		s.entries[e.ID] = e.Clone()
	}
	return s
}

func (s *fakeStore) ListEntryIDs(_ context.Context) ([]int64, error) {
	if s.entered != nil {
		close(s.entered)
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *fakeStore) LoadEntry(_ context.Context, id int64) (*catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, errors.NewNotFoundError("catalog entry %d", id)
	}
	return e.Clone(), nil
}

func (s *fakeStore) SaveEntry(_ context.Context, entry *catalog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave[entry.ID] {
		return errors.New("disk full")
	}
	s.saves++
	s.entries[entry.ID] = entry.Clone()
	return nil
}

func (s *fakeStore) SetEntryTerms(_ context.Context, id int64, key string, termIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terms[id] == nil {
		s.terms[id] = make(map[string][]int64)
	}
	s.terms[id][key] = append([]int64(nil), termIDs...)
	return nil
}

func (s *fakeStore) entry(id int64) *catalog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[id].Clone()
}

func localEntry(id int64, attrs map[string][]string) *catalog.Entry {
	e := &catalog.Entry{ID: id, SKU: "SKU", ItemType: catalog.DefaultItemType}
	for name, values := range attrs {
		e.SetAttribute(name, catalog.NewLocal(name, values...))
	}
	return e
}
