package store

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Settings selects and configures a backend.
type Settings struct {
	Driver    string // memory | pebble | postgres
	Path      string
	DSN       string
	CacheSize int
	CacheTTL  time.Duration
}

// Open builds the configured backend, wrapped in a cache when CacheSize > 0.
func Open(ctx context.Context, cfg Settings, opts ...Option) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		s = NewMemory(opts...)
	case "pebble":
		s, err = OpenPebble(cfg.Path, opts...)
	case "postgres", "pg":
		s, err = OpenPostgres(ctx, cfg.DSN, opts...)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[store] opened %s backend", backendName(s))
	if cfg.CacheSize > 0 {
		return NewCached(s, cfg.CacheSize, cfg.CacheTTL), nil
	}
	return s, nil
}

func backendName(s Store) string {
	switch s.(type) {
	case *MemoryStore:
		return "memory"
	case *PebbleStore:
		return "pebble"
	case *PostgresStore:
		return "postgres"
	default:
		return fmt.Sprintf("%T", s)
	}
}
