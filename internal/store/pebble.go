package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
)

const (
	docPrefix = "doc/"
	idxPrefix = "idx/"
)

// PebbleStore persists documents in an embedded pebble database. Each put
// writes the body under doc/<id> and the index value under idx/<type>/<id>
// in a single synced batch.
type PebbleStore struct {
	db       *pebble.DB
	opts     options
	notifier Notifier

	// serializes read-modify-write of the index entries
	writeMu sync.Mutex
}

// OpenPebble opens (or creates) the database directory at path.
func OpenPebble(path string, opts ...Option) (*PebbleStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("pebble store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &PebbleStore{db: db, opts: buildOptions(opts)}, nil
}

func docKey(id string) []byte {
	return []byte(docPrefix + id)
}

func idxKey(docType, id string) []byte {
	return []byte(idxPrefix + docType + "/" + id)
}

func (s *PebbleStore) Put(ctx context.Context, doc Document) (string, error) {
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

	s.writeMu.Lock()
	previous, err := s.read(prepared.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.writeMu.Unlock()
		return "", err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err == nil && previous.Type != prepared.Type {
		if err := batch.Delete(idxKey(previous.Type, prepared.ID), nil); err != nil {
			s.writeMu.Unlock()
			return "", fmt.Errorf("stage index delete: %w", err)
		}
	}
	if err := batch.Set(docKey(prepared.ID), prepared.Body, nil); err != nil {
		s.writeMu.Unlock()
		return "", fmt.Errorf("stage document: %w", err)
	}
	if err := batch.Set(idxKey(prepared.Type, prepared.ID), value, nil); err != nil {
		s.writeMu.Unlock()
		return "", fmt.Errorf("stage index: %w", err)
	}
	err = batch.Commit(pebble.Sync)
	s.writeMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("commit document %s: %w", prepared.ID, err)
	}

	s.notifier.Publish(Change{ID: prepared.ID, Type: prepared.Type})
	return prepared.ID, nil
}

func (s *PebbleStore) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	return s.read(id)
}

func (s *PebbleStore) read(id string) (Document, error) {
	v, closer, err := s.db.Get(docKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	body := make([]byte, len(v))
	copy(body, v)
	_ = closer.Close()

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	return Document{ID: id, Type: head.Type, Body: body}, nil
}

func (s *PebbleStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	previous, err := s.read(id)
	if errors.Is(err, ErrNotFound) {
		s.writeMu.Unlock()
		return nil
	}
	if err != nil {
		s.writeMu.Unlock()
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(docKey(id), nil); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("stage document delete: %w", err)
	}
	if err := batch.Delete(idxKey(previous.Type, id), nil); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("stage index delete: %w", err)
	}
	err = batch.Commit(pebble.Sync)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}

	s.notifier.Publish(Change{ID: id, Type: previous.Type, Deleted: true})
	return nil
}

func (s *PebbleStore) Query(ctx context.Context, key string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := idxPrefix + key + "/"
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("open index iterator: %w", err)
	}
	defer iter.Close()

	rows := make([]Row, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		k := string(iter.Key())
		v := iter.Value()
		value := make([]byte, len(v))
		copy(value, v)
		rows = append(rows, Row{ID: strings.TrimPrefix(k, prefix), Key: key, Value: value})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan index %s: %w", key, err)
	}
	return rows, nil
}

func (s *PebbleStore) Subscribe(fn func(Change)) func() {
	return s.notifier.Subscribe(fn)
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
