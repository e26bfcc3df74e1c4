package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nameProjection(body json.RawMessage) (json.RawMessage, error) {
	var v struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"name": v.Name})
}

func backends(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store {
			return NewMemory(WithProjection("card", nameProjection))
		},
		"pebble": func() Store {
			s, err := OpenPebble(filepath.Join(t.TempDir(), "db"), WithProjection("card", nameProjection))
			require.NoError(t, err)
			return s
		},
		"cached": func() Store {
			return NewCached(NewMemory(WithProjection("card", nameProjection)), 8, time.Minute)
		},
	}
}

func TestStoreConformance(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open()
			defer s.Close()

			id, err := s.Put(ctx, Document{Type: "card", Body: json.RawMessage(`{"name":"Tom","secret":"x"}`)})
			require.NoError(t, err)
			require.NotEmpty(t, id)

			doc, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "card", doc.Type)

			var body map[string]any
			require.NoError(t, json.Unmarshal(doc.Body, &body))
			assert.Equal(t, id, body["_id"])
			assert.Equal(t, "card", body["type"])
			assert.Equal(t, "x", body["secret"])

			rows, err := s.Query(ctx, "card")
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, id, rows[0].ID)
			assert.JSONEq(t, `{"name":"Tom"}`, string(rows[0].Value))

			// upsert keeps the id
			again, err := s.Put(ctx, Document{ID: id, Type: "card", Body: json.RawMessage(`{"name":"Tom B"}`)})
			require.NoError(t, err)
			assert.Equal(t, id, again)
			doc, err = s.Get(ctx, id)
			require.NoError(t, err)
			assert.Contains(t, string(doc.Body), "Tom B")

			require.NoError(t, s.Delete(ctx, id))
			_, err = s.Get(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.NoError(t, s.Delete(ctx, id))

			rows, err = s.Query(ctx, "card")
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestQueryOrderedByIDAndScopedByType(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open()
			defer s.Close()

			var ids []string
			for _, n := range []string{"a", "b", "c"} {
				id, err := s.Put(ctx, Document{Type: "card", Body: json.RawMessage(`{"name":"` + n + `"}`)})
				require.NoError(t, err)
				ids = append(ids, id)
			}
			_, err := s.Put(ctx, Document{ID: "discovery", Type: "discovery", Body: json.RawMessage(`{"product":"p"}`)})
			require.NoError(t, err)

			rows, err := s.Query(ctx, "card")
			require.NoError(t, err)
			require.Len(t, rows, 3)
			for i, row := range rows {
				assert.Equal(t, ids[i], row.ID)
				assert.Equal(t, "card", row.Key)
			}

			rows, err = s.Query(ctx, "discovery")
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Contains(t, string(rows[0].Value), `"product":"p"`)
		})
	}
}

func TestTypeChangeMovesIndexEntry(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open()
			defer s.Close()

			id, err := s.Put(ctx, Document{Type: "card", Body: json.RawMessage(`{"name":"x"}`)})
			require.NoError(t, err)
			_, err = s.Put(ctx, Document{ID: id, Type: "other", Body: json.RawMessage(`{"name":"x"}`)})
			require.NoError(t, err)

			rows, err := s.Query(ctx, "card")
			require.NoError(t, err)
			assert.Empty(t, rows)
			rows, err = s.Query(ctx, "other")
			require.NoError(t, err)
			assert.Len(t, rows, 1)
		})
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open()
			defer s.Close()

			var (
				mu      sync.Mutex
				changes []Change
			)
			cancel := s.Subscribe(func(c Change) {
				mu.Lock()
				changes = append(changes, c)
				mu.Unlock()
			})

			id, err := s.Put(ctx, Document{Type: "card", Body: json.RawMessage(`{"name":"x"}`)})
			require.NoError(t, err)
			require.NoError(t, s.Delete(ctx, id))
			cancel()
			_, err = s.Put(ctx, Document{Type: "card", Body: json.RawMessage(`{"name":"y"}`)})
			require.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, changes, 2)
			assert.Equal(t, Change{ID: id, Type: "card"}, changes[0])
			assert.Equal(t, Change{ID: id, Type: "card", Deleted: true}, changes[1])
		})
	}
}

func TestPutRejectsNonObjectBody(t *testing.T) {
	s := NewMemory()
	_, err := s.Put(context.Background(), Document{Type: "card", Body: json.RawMessage(`[1,2]`)})
	assert.Error(t, err)
	_, err = s.Put(context.Background(), Document{Type: "card"})
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestPutAdoptsIDFromBody(t *testing.T) {
	s := NewMemory()
	id, err := s.Put(context.Background(), Document{Body: json.RawMessage(`{"_id":"fixed","type":"card"}`)})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)
	doc, err := s.Get(context.Background(), "fixed")
	require.NoError(t, err)
	assert.Equal(t, "card", doc.Type)
}

func TestPebbleReopenKeepsDocuments(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	s, err := OpenPebble(path)
	require.NoError(t, err)
	id, err := s.Put(ctx, Document{Type: "card", Body: json.RawMessage(`{"name":"kept"}`)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenPebble(path)
	require.NoError(t, err)
	defer s.Close()
	doc, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "kept")
}

func TestCachedServesFreshDataAfterWrite(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	c := NewCached(inner, 4, 0)
	defer c.Close()

	id, err := c.Put(ctx, Document{Type: "card", Body: json.RawMessage(`{"name":"v1"}`)})
	require.NoError(t, err)
	doc, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "v1")

	// a write through the inner store is seen via the change notification
	_, err = inner.Put(ctx, Document{ID: id, Type: "card", Body: json.RawMessage(`{"name":"v2"}`)})
	require.NoError(t, err)
	doc, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "v2")
}

// gatedStore blocks the first Get after reading until release is closed.
type gatedStore struct {
	Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (g *gatedStore) Get(ctx context.Context, id string) (Document, error) {
	doc, err := g.Store.Get(ctx, id)
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return doc, err
}

func TestCachedDropsFillRacingAWrite(t *testing.T) {
	ctx := context.Background()
	inner := &gatedStore{Store: NewMemory(), read: make(chan struct{}), release: make(chan struct{})}
	id, err := inner.Store.Put(ctx, Document{Type: "card", Body: json.RawMessage(`{"v":1}`)})
	require.NoError(t, err)

	c := NewCached(inner, 4, 0)
	defer c.Close()

	done := make(chan Document, 1)
	go func() {
		doc, err := c.Get(ctx, id)
		assert.NoError(t, err)
		done <- doc
	}()
	<-inner.read

	_, err = c.Put(ctx, Document{ID: id, Type: "card", Body: json.RawMessage(`{"v":2}`)})
	require.NoError(t, err)
	close(inner.release)

	stale := <-done
	assert.Contains(t, string(stale.Body), `"v":1`)

	doc, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), `"v":2`)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Settings{Driver: "mongo"})
	assert.Error(t, err)

	s, err := Open(context.Background(), Settings{Driver: "memory", CacheSize: 4})
	require.NoError(t, err)
	_, ok := s.(*CachedStore)
	assert.True(t, ok)
	require.NoError(t, s.Close())
}
