package entity

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore is a thread-safe in-memory Store, useful for tests and local
// runs. Documents are kept in encoded form so reads never alias writes.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]map[string][]byte // type -> id -> JSON
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, typ, id string) (Document, error) {
	s.mu.RLock()
	data, ok := s.items[typ][id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(typ, id)
	}
	return decode(data)
}

func (s *MemoryStore) Update(_ context.Context, typ, id string, fn UpdateFunc) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current Document
	if data, ok := s.items[typ][id]; ok {
		var err error
		if current, err = decode(data); err != nil {
			return nil, err
		}
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	out, data, err := normalize(next)
	if err != nil {
		return nil, err
	}
	if s.items[typ] == nil {
		s.items[typ] = make(map[string][]byte)
	}
	s.items[typ][id] = data
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, typ, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[typ][id]; !ok {
		return notFound(typ, id)
	}
	delete(s.items[typ], id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, typ string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(s.items[typ]))
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc, err := decode(s.items[typ][id])
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MemoryStore) Close() error { return nil }
