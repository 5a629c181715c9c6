package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/attrmigrate/errors"
)

// SQLStore is the SQLite-backed catalog Store
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a catalog store over a migrated database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// ListEntryIDs returns the ids of all entries in ascending order
func (s *SQLStore) ListEntryIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM catalog_entries ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list catalog entries")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan entry id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating catalog entries")
	}
	return ids, nil
}

// CountEntries returns the number of catalog entries
func (s *SQLStore) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_entries").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count catalog entries")
	}
	return n, nil
}

// LoadEntry reads an entry and its attribute mapping.
// Global attributes get their TermIDs from the entry's term associations.
func (s *SQLStore) LoadEntry(ctx context.Context, id int64) (*Entry, error) {
	entry := &Entry{ID: id, Attributes: make(map[string]Attribute)}
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT sku, title, item_type, created_at, updated_at FROM catalog_entries WHERE id = ?", id,
	).Scan(&entry.SKU, &entry.Title, &entry.ItemType, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("catalog entry %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load entry %d", id)
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	entry.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT attr_key, kind, name, options, taxonomy_id, position, visible, variation
		FROM entry_attributes
		WHERE entry_id = ?
	`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load attributes of entry %d", id)
	}

	var globalKeys []string
	for rows.Next() {
		var key, optionsJSON string
		var a Attribute
		var taxonomyID sql.NullInt64
		if err := rows.Scan(&key, &a.Kind, &a.Name, &optionsJSON, &taxonomyID, &a.Position, &a.Visible, &a.Variation); err != nil {
			rows.Close()
			return nil, errors.Wrapf(err, "failed to scan attribute of entry %d", id)
		}
		if err := json.Unmarshal([]byte(optionsJSON), &a.Options); err != nil {
			rows.Close()
			return nil, errors.Wrapf(err, "corrupt options for %s on entry %d", key, id)
		}
		if taxonomyID.Valid {
			a.TaxonomyID = taxonomyID.Int64
		}
		if a.IsTaxonomy() {
			globalKeys = append(globalKeys, key)
		}
		entry.Attributes[key] = a
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrapf(err, "error iterating attributes of entry %d", id)
	}
	rows.Close()

	for _, key := range globalKeys {
		a := entry.Attributes[key]
		termIDs, err := s.EntryTerms(ctx, id, a.Name)
		if err != nil {
			return nil, err
		}
		a.TermIDs = termIDs
		entry.Attributes[key] = a
	}

	return entry, nil
}

// SaveEntry replaces the stored attribute mapping of an existing entry
func (s *SQLStore) SaveEntry(ctx context.Context, entry *Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin save of entry %d", entry.ID)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE catalog_entries SET sku = ?, title = ?, item_type = ?, updated_at = ? WHERE id = ?
	`, entry.SKU, entry.Title, itemTypeOrDefault(entry.ItemType), now.Format(time.RFC3339), entry.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to update entry %d", entry.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if affected == 0 {
		return errors.NewNotFoundError("catalog entry %d", entry.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM entry_attributes WHERE entry_id = ?", entry.ID); err != nil {
		return errors.Wrapf(err, "failed to clear attributes of entry %d", entry.ID)
	}
	if err := insertAttributes(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit save of entry %d", entry.ID)
	}
	entry.UpdatedAt = now
	return nil
}

// SetEntryTerms replaces the entry's associations with terms of taxonomy.
// termIDs keep their order; duplicates are dropped.
func (s *SQLStore) SetEntryTerms(ctx context.Context, id int64, taxonomy string, termIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin term association for entry %d", id)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM entry_terms WHERE entry_id = ? AND taxonomy = ?", id, taxonomy); err != nil {
		return errors.Wrapf(err, "failed to clear %s terms of entry %d", taxonomy, id)
	}

	seen := make(map[int64]bool, len(termIDs))
	order := 0
	for _, termID := range termIDs {
		if seen[termID] {
			continue
		}
		seen[termID] = true
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO entry_terms (entry_id, taxonomy, term_id, term_order) VALUES (?, ?, ?, ?)",
			id, taxonomy, termID, order); err != nil {
			return errors.Wrapf(err, "failed to associate term %d with entry %d", termID, id)
		}
		order++
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit term association for entry %d", id)
	}
	return nil
}

// EntryTerms returns the term ids associated with the entry in taxonomy
func (s *SQLStore) EntryTerms(ctx context.Context, id int64, taxonomy string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT term_id FROM entry_terms WHERE entry_id = ? AND taxonomy = ? ORDER BY term_order",
		id, taxonomy)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s terms of entry %d", taxonomy, id)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var termID int64
		if err := rows.Scan(&termID); err != nil {
			return nil, errors.Wrap(err, "failed to scan term id")
		}
		ids = append(ids, termID)
	}
	return ids, rows.Err()
}

// CreateEntry inserts a new entry with its attributes and returns its id
func (s *SQLStore) CreateEntry(ctx context.Context, entry *Entry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin entry creation")
	}
	defer tx.Rollback()

	id, err := createEntry(ctx, tx, entry, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit entry creation")
	}
	return id, nil
}

// ImportRecord is the seed format for catalog entries carrying local attributes
type ImportRecord struct {
	SKU        string            `json:"sku" yaml:"sku"`
	Title      string            `json:"title" yaml:"title"`
	ItemType   string            `json:"item_type,omitempty" yaml:"item_type,omitempty"`
	Attributes []ImportAttribute `json:"attributes" yaml:"attributes"`
}

// ImportAttribute is one local attribute of an ImportRecord
type ImportAttribute struct {
	Name    string   `json:"name" yaml:"name"`
	Options []string `json:"options" yaml:"options"`
}

// ImportEntries creates one entry per record in a single transaction and returns their ids
func (s *SQLStore) ImportEntries(ctx context.Context, records []ImportRecord) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin import")
	}
	defer tx.Rollback()

	now := s.now().UTC()
	ids := make([]int64, 0, len(records))
	for i, rec := range records {
		entry := &Entry{SKU: rec.SKU, Title: rec.Title, ItemType: rec.ItemType}
		for pos, attr := range rec.Attributes {
			if NormalizeKey(attr.Name) == "" {
				return nil, errors.NewInvalidRequestError("record %d: attribute %d has no name", i, pos)
			}
			a := NewLocal(attr.Name, attr.Options...)
			a.Position = pos
			entry.SetAttribute(attr.Name, a)
		}
		id, err := createEntry(ctx, tx, entry, now)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit import")
	}
	return ids, nil
}

func createEntry(ctx context.Context, tx *sql.Tx, entry *Entry, now time.Time) (int64, error) {
	stamp := now.Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO catalog_entries (sku, title, item_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.SKU, entry.Title, itemTypeOrDefault(entry.ItemType), stamp, stamp)
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert entry")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read entry id")
	}
	entry.ID = id
	entry.CreatedAt, entry.UpdatedAt = now, now

	if err := insertAttributes(ctx, tx, entry); err != nil {
		return 0, err
	}
	return id, nil
}

func insertAttributes(ctx context.Context, tx *sql.Tx, entry *Entry) error {
	for _, key := range entry.Keys() {
		a := entry.Attributes[key]
		options := a.Options
		if options == nil {
			options = []string{}
		}
		optionsJSON, err := json.Marshal(options)
		if err != nil {
			return errors.Wrapf(err, "failed to encode options for %s", key)
		}

		var taxonomyID interface{}
		if a.IsTaxonomy() {
			taxonomyID = a.TaxonomyID
		}
		kind := a.Kind
		if kind == "" {
			kind = KindLocal
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entry_attributes (entry_id, attr_key, kind, name, options, taxonomy_id, position, visible, variation)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, entry.ID, key, string(kind), a.Name, string(optionsJSON), taxonomyID, a.Position, a.Visible, a.Variation); err != nil {
			return errors.Wrapf(err, "failed to write attribute %s of entry %d", key, entry.ID)
		}
	}
	return nil
}

func itemTypeOrDefault(itemType string) string {
	if itemType == "" {
		return DefaultItemType
	}
	return itemType
}
