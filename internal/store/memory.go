package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

type memoryEntry struct {
	docType string
	body    json.RawMessage
	value   json.RawMessage
}

// MemoryStore implements Store with in-process maps. Data is lost on exit.
type MemoryStore struct {
	opts     options
	notifier Notifier

	mu     sync.RWMutex
	docs   map[string]memoryEntry
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts: buildOptions(opts),
		docs: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Put(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prepared, err := prepare(doc)
	if err != nil {
		return "", err
	}
	value, err := s.opts.project(prepared)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	s.docs[prepared.ID] = memoryEntry{docType: prepared.Type, body: prepared.Body, value: value}
	s.mu.Unlock()

	s.notifier.Publish(Change{ID: prepared.ID, Type: prepared.Type})
	return prepared.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Document{}, ErrClosed
	}
	entry, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Type: entry.docType, Body: append(json.RawMessage(nil), entry.body...)}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	entry, ok := s.docs[id]
	delete(s.docs, id)
	s.mu.Unlock()

	if ok {
		s.notifier.Publish(Change{ID: id, Type: entry.docType, Deleted: true})
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, key string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	rows := make([]Row, 0)
	for id, entry := range s.docs {
		if entry.docType != key {
			continue
		}
		rows = append(rows, Row{ID: id, Key: key, Value: append(json.RawMessage(nil), entry.value...)})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (s *MemoryStore) Subscribe(fn func(Change)) func() {
	return s.notifier.Subscribe(fn)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
