package ledger_test

import (
	"context"
	"testing"
	"time"

	"caseline/internal/db"
	"caseline/internal/docstore"
	"caseline/internal/domain"
	"caseline/internal/ledger"
	"caseline/internal/migrate"
)

func newLedger(t *testing.T) (ledger.Ledger, *docstore.Store) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := docstore.New(conn)
	return ledger.Ledger{Store: store}, store
}

func TestAppendAndCausalOrder(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	actor := domain.Actor{ID: "u1", Name: "Asha"}
	for _, action := range []string{"one", "two", "three"} {
		if _, err := l.Append(ctx, "case-1", ledger.Record{
			Type:   domain.ActivityNote,
			Action: action,
			Actor:  actor,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	asc, err := l.List(ctx, "case-1", 0, 0, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(asc) != 3 {
		t.Fatalf("expected 3 records, got %d", len(asc))
	}
	for i, want := range []string{"one", "two", "three"} {
		if asc[i].Action != want {
			t.Fatalf("ascending order wrong at %d: %q", i, asc[i].Action)
		}
		if asc[i].UserName != "Asha" {
			t.Fatalf("actor snapshot missing: %+v", asc[i])
		}
		if asc[i].Timestamp == "" {
			t.Fatalf("timestamp not assigned: %+v", asc[i])
		}
	}
	desc, err := l.List(ctx, "case-1", 1, 0, true)
	if err != nil {
		t.Fatalf("list desc: %v", err)
	}
	if len(desc) != 1 || desc[0].Action != "three" {
		t.Fatalf("descending wrong: %v", desc)
	}
}

func TestAppendRejectsUnknownType(t *testing.T) {
	l, _ := newLedger(t)
	if _, err := l.Append(context.Background(), "case-1", ledger.Record{Type: "edited", Action: "x"}); err == nil {
		t.Fatalf("expected unknown type error")
	}
	if _, err := l.Append(context.Background(), "", ledger.Record{Type: domain.ActivityNote}); err == nil {
		t.Fatalf("expected case id error")
	}
}

func TestRecordsImmutableUnderLaterWrites(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	id, err := l.Append(ctx, "case-1", ledger.Record{Type: domain.ActivityNote, Action: "first", Actor: domain.Actor{ID: "u1"}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	// a burst of later appends must leave the original untouched
	for i := 0; i < 5; i++ {
		if _, err := l.Append(ctx, "case-1", ledger.Record{Type: domain.ActivityOther, Action: "later", Actor: domain.Actor{ID: "u2"}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	records, err := l.List(ctx, "case-1", 0, 0, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records[0].ID != id || records[0].Action != "first" || records[0].UserID != "u1" {
		t.Fatalf("first record changed: %+v", records[0])
	}
}

func TestSubscribeReplaysWholeLedger(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	if _, err := l.Append(ctx, "case-1", ledger.Record{Type: domain.ActivityNote, Action: "first", Actor: domain.Actor{ID: "u1"}}); err != nil {
		t.Fatal(err)
	}
	feed, err := l.Subscribe(ctx, "case-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer feed.Close()
	first := waitFeed(t, feed)
	if len(first) != 1 {
		t.Fatalf("initial snapshot wrong: %v", first)
	}
	if _, err := l.Append(ctx, "case-1", ledger.Record{Type: domain.ActivityNote, Action: "second", Actor: domain.Actor{ID: "u1"}}); err != nil {
		t.Fatal(err)
	}
	// wait until the ledger grows to 2; intermediate snapshots may be dropped
	deadline := time.After(2 * time.Second)
	for {
		snap := waitFeedOr(t, feed, deadline)
		if len(snap) == 2 {
			if snap[0].Action != "first" || snap[1].Action != "second" {
				t.Fatalf("replay out of order: %v", snap)
			}
			return
		}
	}
}

func waitFeed(t *testing.T, feed *ledger.Feed) []domain.ActivityRecord {
	t.Helper()
	return waitFeedOr(t, feed, time.After(2*time.Second))
}

func waitFeedOr(t *testing.T, feed *ledger.Feed, deadline <-chan time.Time) []domain.ActivityRecord {
	t.Helper()
	select {
	case snap := <-feed.C:
		return snap
	case <-deadline:
		t.Fatalf("timed out waiting for feed snapshot")
		return nil
	}
}
