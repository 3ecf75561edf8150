package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"caseline/internal/domain"
)

// ActivityAfter returns activity records across all cases with seq greater
// than afterSeq, in insertion order. It reads the documents table directly
// because the per-case child collections have no single collection name to
// query through the store.
func (r Repo) ActivityAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.ActivityRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT seq, id, collection, body FROM documents WHERE collection LIKE 'cases/%/activity' AND seq > ? ORDER BY seq ASC LIMIT ?`,
		afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityRecord
	for rows.Next() {
		var seq int64
		var id, collection, body string
		if err := rows.Scan(&seq, &id, &collection, &body); err != nil {
			return nil, err
		}
		var rec domain.ActivityRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode activity %s: %w", id, err)
		}
		rec.ID = id
		rec.Seq = seq
		if rec.CaseID == "" {
			if parts := strings.Split(collection, "/"); len(parts) == 3 {
				rec.CaseID = parts[1]
			}
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// LatestActivitySeq returns the highest activity seq, or 0 when the ledger is
// empty. Used to start webhook cursors at the present.
func (r Repo) LatestActivitySeq(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM documents WHERE collection LIKE 'cases/%/activity'`)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}
