package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/attrmigrate/errors"
)

// Record is a persisted event row
type Record struct {
	ID          int64          `json:"id"`
	ExecutionID string         `json:"execution_id"`
	Timestamp   string         `json:"timestamp"`
	Kind        EventKind      `json:"kind"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	EntryID     *int64         `json:"entry_id,omitempty"`
	Attribute   string         `json:"attribute,omitempty"`
	Term        string         `json:"term,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Store persists pass events in the run_events table
type Store struct {
	db *sql.DB
}

// NewStore creates a new run event store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes ev under executionID
func (s *Store) Append(ctx context.Context, executionID string, ev Event) error {
	metadata := make(map[string]any, len(ev.Metadata)+5)
	for k, v := range ev.Metadata {
		metadata[k] = v
	}
	if ev.Taxonomy != "" {
		metadata["taxonomy"] = ev.Taxonomy
	}
	if ev.TaxonomyID != 0 {
		metadata["taxonomy_id"] = ev.TaxonomyID
	}
	if ev.TermID != 0 {
		metadata["term_id"] = ev.TermID
	}
	if ev.Err != nil {
		metadata["error"] = ev.Err.Error()
		metadata["error_type"] = errors.Kind(ev.Err)
	}

	var metadataJSON *string
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return errors.Wrap(err, "failed to encode event metadata")
		}
		encoded := string(data)
		metadataJSON = &encoded
	}

	var entryID *int64
	if ev.EntryID != 0 {
		entryID = &ev.EntryID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (execution_id, timestamp, kind, level, message, entry_id, attribute, term, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, executionID, time.Now().UTC().Format(time.RFC3339Nano), string(ev.Kind), ev.Level(), ev.Message,
		entryID, nullString(ev.Attribute), nullString(ev.Term), metadataJSON)
	if err != nil {
		return errors.Wrapf(err, "failed to append %s event for execution %s", ev.Kind, executionID)
	}
	return nil
}

// ListForExecution returns the events of an execution in recording order
func (s *Store) ListForExecution(ctx context.Context, executionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, timestamp, kind, level, message, entry_id, attribute, term, metadata
		FROM run_events
		WHERE execution_id = ?
		ORDER BY id ASC
	`, executionID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query events for execution %s", executionID)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var entryID sql.NullInt64
		var attribute, term, metadataJSON sql.NullString
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.Timestamp, &r.Kind, &r.Level, &r.Message,
			&entryID, &attribute, &term, &metadataJSON); err != nil {
			return nil, errors.Wrapf(err, "failed to scan event row for execution %s", executionID)
		}
		if entryID.Valid {
			id := entryID.Int64
			r.EntryID = &id
		}
		r.Attribute = attribute.String
		r.Term = term.String
		if metadataJSON.Valid {
			if err := json.Unmarshal([]byte(metadataJSON.String), &r.Metadata); err != nil {
				// Non-fatal: a bad row should not hide the rest of the run
				r.Metadata = map[string]any{}
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating events for execution %s", executionID)
	}
	return records, nil
}

// CountByKind returns how many events of each kind an execution recorded
func (s *Store) CountByKind(ctx context.Context, executionID string) (map[EventKind]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, COUNT(*) FROM run_events WHERE execution_id = ? GROUP BY kind", executionID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to count events for execution %s", executionID)
	}
	defer rows.Close()

	counts := make(map[EventKind]int)
	for rows.Next() {
		var kind EventKind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan event count")
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
