package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore fronts Get with an expiring LRU. Writes and change
// notifications drop the affected entry.
type CachedStore struct {
	Store
	cache       *expirable.LRU[string, Document]
	unsubscribe func()

	// epoch counts invalidations. A miss only fills the cache when no
	// invalidation happened while the inner read was in flight.
	mu    sync.Mutex
	epoch uint64
}

// NewCached wraps inner. A non-positive ttl keeps entries until evicted by size.
func NewCached(inner Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 256
	}
	c := &CachedStore{
		Store: inner,
		cache: expirable.NewLRU[string, Document](size, nil, ttl),
	}
	c.unsubscribe = inner.Subscribe(func(change Change) {
		c.invalidate(change.ID)
	})
	return c
}

func (c *CachedStore) Get(ctx context.Context, id string) (Document, error) {
	if doc, ok := c.cache.Get(id); ok {
		return cloneDocument(doc), nil
	}
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	doc, err := c.Store.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.cache.Add(id, cloneDocument(doc))
	}
	c.mu.Unlock()
	return doc, nil
}

func (c *CachedStore) Put(ctx context.Context, doc Document) (string, error) {
	id, err := c.Store.Put(ctx, doc)
	if id != "" {
		c.invalidate(id)
	}
	return id, err
}

func (c *CachedStore) Delete(ctx context.Context, id string) error {
	c.invalidate(id)
	err := c.Store.Delete(ctx, id)
	c.invalidate(id)
	return err
}

func (c *CachedStore) invalidate(id string) {
	c.mu.Lock()
	c.epoch++
	c.cache.Remove(id)
	c.mu.Unlock()
}

func (c *CachedStore) Close() error {
	c.unsubscribe()
	c.cache.Purge()
	return c.Store.Close()
}

func cloneDocument(doc Document) Document {
	doc.Body = append(json.RawMessage(nil), doc.Body...)
	return doc
}
