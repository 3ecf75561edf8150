// Package ledger is the append-only, per-case activity log. It is layered on
// the document store as a child collection keyed by case id; records are never
// edited or deleted, and the ledger never mutates the case document itself, so
// audit writes and lifecycle writes stay independently retryable.
package ledger

import (
	"context"
	"fmt"

	"caseline/internal/docstore"
	"caseline/internal/domain"
)

// Store is the slice of the document store the ledger needs.
type Store interface {
	Add(ctx context.Context, collection string, fields docstore.Fields) (string, error)
	List(ctx context.Context, q docstore.Query) ([]docstore.Document, error)
	Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error)
}

// Collection returns the child collection holding a case's activity records.
func Collection(caseID string) string {
	return "cases/" + caseID + "/activity"
}

type Ledger struct {
	Store Store
}

// Record is the caller-supplied part of an activity record. ID and timestamp
// are assigned by the store on append.
type Record struct {
	Type     string
	Action   string
	Actor    domain.Actor
	Notes    string
	Metadata map[string]any
}

var recordTypes = map[string]bool{
	domain.ActivityStatusChange: true,
	domain.ActivityNote:         true,
	domain.ActivityFileUpload:   true,
	domain.ActivityReminder:     true,
	domain.ActivityTaskCreated:  true,
	domain.ActivityOther:        true,
}

// Append writes one immutable record and returns its id. The timestamp is
// server-assigned; insertion sequence makes records causally ordered per case.
// There is deliberately no update or delete counterpart.
func (l Ledger) Append(ctx context.Context, caseID string, rec Record) (string, error) {
	if caseID == "" {
		return "", fmt.Errorf("case id required")
	}
	if !recordTypes[rec.Type] {
		return "", fmt.Errorf("unknown activity type %q", rec.Type)
	}
	fields := docstore.Fields{
		"case_id":   caseID,
		"type":      rec.Type,
		"action":    rec.Action,
		"user_id":   rec.Actor.ID,
		"user_name": rec.Actor.Name,
		"timestamp": docstore.ServerTimestamp,
	}
	if rec.Notes != "" {
		fields["notes"] = rec.Notes
	}
	if len(rec.Metadata) > 0 {
		fields["metadata"] = rec.Metadata
	}
	id, err := l.Store.Add(ctx, Collection(caseID), fields)
	if err != nil {
		return "", fmt.Errorf("append activity: %w", err)
	}
	return id, nil
}

// List returns a case's records ordered by insertion, ascending for causal
// reasoning or descending for display. AfterSeq resumes past a cursor.
func (l Ledger) List(ctx context.Context, caseID string, limit int, afterSeq int64, descending bool) ([]domain.ActivityRecord, error) {
	docs, err := l.Store.List(ctx, docstore.Query{
		Collection: Collection(caseID),
		Limit:      limit,
		AfterSeq:   afterSeq,
		Descending: descending,
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(docs)
}

// Feed is a live view of one case's ledger: every append delivers the full
// ordered record list again, mirroring the store's whole-re-query notification.
type Feed struct {
	C <-chan []domain.ActivityRecord

	sub *docstore.Subscription
}

func (f *Feed) Close() { f.sub.Close() }

// Subscribe opens a live feed for one case. Any number of observers may hold
// feeds on the same case concurrently.
func (l Ledger) Subscribe(ctx context.Context, caseID string) (*Feed, error) {
	sub, err := l.Store.Subscribe(ctx, docstore.Query{Collection: Collection(caseID)})
	if err != nil {
		return nil, err
	}
	out := make(chan []domain.ActivityRecord, 1)
	feed := &Feed{C: out, sub: sub}
	go func() {
		defer close(out)
		for snapshot := range sub.C {
			records, err := decodeAll(snapshot)
			if err != nil {
				continue
			}
			select {
			case <-out:
			default:
			}
			out <- records
		}
	}()
	return feed, nil
}

func decodeAll(docs []docstore.Document) ([]domain.ActivityRecord, error) {
	var res []domain.ActivityRecord
	for _, doc := range docs {
		var rec domain.ActivityRecord
		if err := doc.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode activity %s: %w", doc.ID, err)
		}
		rec.ID = doc.ID
		rec.Seq = doc.Seq
		res = append(res, rec)
	}
	return res, nil
}
