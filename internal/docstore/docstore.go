// Package docstore is an embedded document store with field-merge writes and
// live full-snapshot subscriptions. It offers no cross-document transactions:
// each Set/Add is atomic on its own, and multi-document flows above it must be
// written to survive a later write failing after an earlier one succeeded.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

// Fields is a partial document: only the named fields are written, everything
// else in the stored body is preserved. Keys may use dotted paths ("a.b") to
// merge into nested objects.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is a marker value: any field set to it is replaced with the
// store's clock at write time. Callers must never substitute their own clock.
var ServerTimestamp serverTimestamp

// Document is a stored document plus its bookkeeping. Seq is a monotone
// insertion sequence across the whole store, so ordering by Seq within one
// collection is insertion order.
type Document struct {
	Collection string
	ID         string
	Seq        int64
	CreatedAt  string
	UpdatedAt  string
	Data       Fields
}

// Decode unmarshals the document body into out via JSON.
func (d Document) Decode(out any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Filter matches documents whose body field at Path equals Value. Path is a
// dotted JSON path without the leading "$.".
type Filter struct {
	Path  string
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	Descending bool
	Limit      int
	AfterSeq   int64
}

// Store is the document store over a single SQLite database.
type Store struct {
	DB  *sql.DB
	Now func() time.Time

	hub *hub
}

func New(db *sql.DB) *Store {
	return &Store{DB: db, Now: time.Now, hub: newHub()}
}

func (s *Store) now() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Get returns one document by collection and id.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT seq, body, created_at, updated_at FROM documents WHERE collection=? AND id=?`, collection, id)
	doc := Document{Collection: collection, ID: id}
	var body string
	err := row.Scan(&doc.Seq, &body, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return doc, ErrNotFound
	}
	if err != nil {
		return doc, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(body), &doc.Data); err != nil {
		return doc, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Add inserts a new document with a generated id and returns the id.
func (s *Store) Add(ctx context.Context, collection string, fields Fields) (string, error) {
	id := uuid.NewString()
	now := s.now()
	body, err := json.Marshal(resolveTimestamps(expandPaths(fields), now))
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", collection, err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO documents(collection, id, body, created_at, updated_at) VALUES (?,?,?,?,?)`,
		collection, id, string(body), now, now)
	if err != nil {
		return "", fmt.Errorf("add %s: %w", collection, err)
	}
	s.hub.broadcast(s, collection)
	return id, nil
}

// Set merges fields into the document, creating it if absent. Only the named
// fields change; the write is last-write-wins with no locking across callers.
func (s *Store) Set(ctx context.Context, collection, id string, fields Fields) error {
	now := s.now()
	patch := resolveTimestamps(expandPaths(fields), now)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	defer tx.Rollback()

	var body string
	current := Fields{}
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&body)
	switch {
	case err == sql.ErrNoRows:
		merged, encErr := json.Marshal(patch)
		if encErr != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, id, encErr)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents(collection, id, body, created_at, updated_at) VALUES (?,?,?,?,?)`,
			collection, id, string(merged), now, now); err != nil {
			return fmt.Errorf("set %s/%s: %w", collection, id, err)
		}
	case err != nil:
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	default:
		if err := json.Unmarshal([]byte(body), &current); err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		merged, encErr := json.Marshal(merge(current, patch))
		if encErr != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, id, encErr)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET body=?, updated_at=? WHERE collection=? AND id=?`,
			string(merged), now, collection, id); err != nil {
			return fmt.Errorf("set %s/%s: %w", collection, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.hub.broadcast(s, collection)
	return nil
}

// List returns documents matching the query in insertion order (or reverse).
func (s *Store) List(ctx context.Context, q Query) ([]Document, error) {
	clauses := []string{"collection=?"}
	args := []any{q.Collection}
	for _, f := range q.Filters {
		clauses = append(clauses, fmt.Sprintf("json_extract(body, '$.%s') = ?", f.Path))
		args = append(args, f.Value)
	}
	if q.AfterSeq > 0 {
		clauses = append(clauses, "seq > ?")
		args = append(args, q.AfterSeq)
	}
	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	query := `SELECT seq, id, body, created_at, updated_at FROM documents WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY seq ` + order
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", q.Collection, err)
	}
	defer rows.Close()
	var res []Document
	for rows.Next() {
		doc := Document{Collection: q.Collection}
		var body string
		if err := rows.Scan(&doc.Seq, &doc.ID, &body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &doc.Data); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, doc.ID, err)
		}
		res = append(res, doc)
	}
	return res, rows.Err()
}

// expandPaths turns dotted keys into nested maps so that merge treats
// "financial.totalBudget" as a single-field write inside "financial".
func expandPaths(fields Fields) Fields {
	out := Fields{}
	for k, v := range fields {
		if !strings.Contains(k, ".") {
			out[k] = v
			continue
		}
		parts := strings.Split(k, ".")
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(Fields)
			if !ok {
				next = Fields{}
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = v
	}
	return out
}

func resolveTimestamps(fields Fields, now string) Fields {
	for k, v := range fields {
		switch val := v.(type) {
		case serverTimestamp:
			fields[k] = now
		case Fields:
			fields[k] = resolveTimestamps(val, now)
		case map[string]any:
			fields[k] = resolveTimestamps(Fields(val), now)
		}
	}
	return fields
}

// merge overlays patch onto current. Nested maps merge recursively; everything
// else, including arrays, is replaced wholesale.
func merge(current, patch Fields) Fields {
	for k, v := range patch {
		pm, pok := asFields(v)
		cm, cok := asFields(current[k])
		if pok && cok {
			current[k] = merge(cm, pm)
			continue
		}
		current[k] = v
	}
	return current
}

func asFields(v any) (Fields, bool) {
	switch m := v.(type) {
	case Fields:
		return m, true
	case map[string]any:
		return Fields(m), true
	}
	return nil, false
}
