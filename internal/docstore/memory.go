package docstore

import (
	"context"
	"encoding/json"
	"sync"
)

// MemStore is an in-memory Store + Subscriber. It documents the
// adapter contract (merge semantics, monotonic updatedAt, subscription
// on every write) in the simplest possible form and backs the package
// tests of every component that takes a Store.
type MemStore struct {
	mu   sync.Mutex
	cols map[string]map[string]Fields
	subs map[string][]chan Fields // keyed by collection/id
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		cols: make(map[string]map[string]Fields),
		subs: make(map[string][]chan Fields),
	}
}

func (s *MemStore) col(collection string) map[string]Fields {
	c, ok := s.cols[collection]
	if !ok {
		c = make(map[string]Fields)
		s.cols[collection] = c
	}
	return c
}

func (s *MemStore) Get(_ context.Context, collection, id string) (Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.col(collection)[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *MemStore) GetAll(_ context.Context, collection string) (map[string]Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.col(collection)
	out := make(map[string]Fields, len(col))
	for id, doc := range col {
		out[id] = doc.Clone()
	}
	return out, nil
}

func (s *MemStore) Set(_ context.Context, collection, id string, doc Fields) error {
	s.mu.Lock()
	s.col(collection)[id] = doc.Clone()
	state := doc.Clone()
	s.mu.Unlock()

	s.notify(collection, id, state)
	return nil
}

func (s *MemStore) SetMerge(_ context.Context, collection, id string, fields Fields) error {
	s.mu.Lock()
	col := s.col(collection)
	doc, ok := col[id]
	if !ok {
		doc = Fields{}
		col[id] = doc
	}
	for k, v := range fields {
		if k == "updatedAt" {
			v = bumpMonotonic(doc[k], v)
		}
		doc[k] = append(json.RawMessage(nil), v...)
	}
	state := doc.Clone()
	s.mu.Unlock()

	s.notify(collection, id, state)
	return nil
}

func (s *MemStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	delete(s.col(collection), id)
	s.mu.Unlock()
	return nil
}

// Subscribe delivers the full document on every write, including the
// subscriber's own.
func (s *MemStore) Subscribe(_ context.Context, collection, id string) (<-chan Fields, func(), error) {
	key := collection + "/" + id
	ch := make(chan Fields, 8)

	s.mu.Lock()
	s.subs[key] = append(s.subs[key], ch)
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			list := s.subs[key]
			for i, c := range list {
				if c == ch {
					s.subs[key] = append(list[:i], list[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (s *MemStore) notify(collection, id string, state Fields) {
	s.mu.Lock()
	list := append([]chan Fields(nil), s.subs[collection+"/"+id]...)
	s.mu.Unlock()

	for _, ch := range list {
		select {
		case ch <- state.Clone():
		default:
		}
	}
}

// bumpMonotonic enforces the strictly-increasing updatedAt invariant.
func bumpMonotonic(prev, next json.RawMessage) json.RawMessage {
	var prevN, nextN int64
	if prev == nil || json.Unmarshal(prev, &prevN) != nil {
		return next
	}
	if json.Unmarshal(next, &nextN) != nil {
		return next
	}
	if nextN <= prevN {
		bumped, _ := json.Marshal(prevN + 1)
		return bumped
	}
	return next
}
