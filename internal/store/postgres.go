package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps documents in a single jsonb table.
type PostgresStore struct {
	db       *sql.DB
	opts     options
	notifier Notifier

	schemaOnce sync.Once
	schemaErr  error
}

// OpenPostgres connects with the pgx stdlib driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{db: db, opts: buildOptions(opts)}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL DEFAULT '',
  body JSONB NOT NULL,
  projection JSONB NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_documents_type ON documents (type, id);
`)
		if s.schemaErr != nil {
			s.schemaErr = fmt.Errorf("create documents schema: %w", s.schemaErr)
		}
	})
	return s.schemaErr
}

func (s *PostgresStore) Put(ctx context.Context, doc Document) (string, error) {
	prepared, err := prepare(doc)
	if err != nil {
		return "", err
	}
	value, err := s.opts.project(prepared)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (id, type, body, projection, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (id)
DO UPDATE SET type=EXCLUDED.type,
  body=EXCLUDED.body,
  projection=EXCLUDED.projection,
  updated_at=NOW()`,
		prepared.ID, prepared.Type, string(prepared.Body), string(value))
	if err != nil {
		return "", fmt.Errorf("upsert document %s: %w", prepared.ID, err)
	}
	s.notifier.Publish(Change{ID: prepared.ID, Type: prepared.Type})
	return prepared.ID, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Document, error) {
	var (
		docType string
		body    []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT type, body FROM documents WHERE id = $1`, id).Scan(&docType, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return Document{ID: id, Type: docType, Body: body}, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	var docType string
	err := s.db.QueryRowContext(ctx, `DELETE FROM documents WHERE id = $1 RETURNING type`, id).Scan(&docType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	s.notifier.Publish(Change{ID: id, Type: docType, Deleted: true})
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, key string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, projection FROM documents WHERE type = $1 ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("query index %s: %w", key, err)
	}
	defer rows.Close()

	out := make([]Row, 0)
	for rows.Next() {
		var (
			id    string
			value []byte
		)
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		out = append(out, Row{ID: id, Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index %s: %w", key, err)
	}
	return out, nil
}

func (s *PostgresStore) Subscribe(fn func(Change)) func() {
	return s.notifier.Subscribe(fn)
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
