package docstore

import (
	"context"
	"sync"
)

// Subscription delivers the full, re-queried state of a collection on every
// write to it. Snapshots are whole replays, not diffs: the store's change
// notification is a re-query, so consumers always see a complete, ordered view.
// A slow consumer is skipped ahead: only the newest pending snapshot is kept.
type Subscription struct {
	C <-chan []Document

	hub   *hub
	id    int
	query Query
	ch    chan []Document

	mu     sync.Mutex
	closed bool
}

// Close detaches the subscription. The channel is closed; callers must not
// read after Close returns except to drain.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.hub.remove(s.id)
	close(s.ch)
}

func (s *Subscription) push(snapshot []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// latest-wins: drop the stale pending snapshot if the consumer lags
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snapshot
}

type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]*Subscription
}

func newHub() *hub {
	return &hub{subs: map[int]*Subscription{}}
}

func (h *hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// broadcast re-runs every matching subscriber's query and pushes the snapshot.
// It runs after the write committed, so a snapshot always reflects at least the
// write that triggered it.
func (h *hub) broadcast(s *Store, collection string) {
	h.mu.Lock()
	var matched []*Subscription
	for _, sub := range h.subs {
		if sub.query.Collection == collection {
			matched = append(matched, sub)
		}
	}
	h.mu.Unlock()
	for _, sub := range matched {
		snapshot, err := s.List(context.Background(), sub.query)
		if err != nil {
			continue
		}
		sub.push(snapshot)
	}
}

// Subscribe registers a live query against one collection. The current
// snapshot is delivered immediately, then a fresh full snapshot follows every
// write to the collection. Any number of observers may subscribe concurrently.
func (s *Store) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	snapshot, err := s.List(ctx, q)
	if err != nil {
		return nil, err
	}
	ch := make(chan []Document, 1)
	sub := &Subscription{hub: s.hub, query: q, ch: ch, C: ch}
	s.hub.mu.Lock()
	s.hub.next++
	sub.id = s.hub.next
	s.hub.subs[sub.id] = sub
	s.hub.mu.Unlock()
	sub.push(snapshot)
	return sub, nil
}
