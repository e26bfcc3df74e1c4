// Package store defines the document store contract used by the discovery core
// and ships memory, pebble and postgres implementations of it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrClosed    = errors.New("store closed")
	ErrEmptyBody = errors.New("document body is empty")
)

// Document is a JSON document keyed by id and indexed by type.
type Document struct {
	ID   string
	Type string
	Body json.RawMessage
}

// Row is one entry of a secondary index query.
type Row struct {
	ID    string
	Key   string
	Value json.RawMessage
}

// Change describes a committed mutation.
type Change struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Deleted bool   `json:"deleted"`
}

// Store is the persistence contract: put/get/delete by id, query by index
// key and change notification.
type Store interface {
	Put(ctx context.Context, doc Document) (string, error)
	Get(ctx context.Context, id string) (Document, error)
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, key string) ([]Row, error)
	Subscribe(fn func(Change)) (cancel func())
	Close() error
}

// Projector derives the index value stored for a document type.
type Projector func(body json.RawMessage) (json.RawMessage, error)

// Option configures a store implementation.
type Option func(*options)

type options struct {
	projections map[string]Projector
}

// WithProjection registers the index value computed for documents of docType.
// Without one, index rows carry the full body.
func WithProjection(docType string, fn Projector) Option {
	return func(o *options) {
		if fn != nil {
			o.projections[docType] = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{projections: make(map[string]Projector)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) project(doc Document) (json.RawMessage, error) {
	fn, ok := o.projections[doc.Type]
	if !ok {
		return doc.Body, nil
	}
	value, err := fn(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("project %s/%s: %w", doc.Type, doc.ID, err)
	}
	return value, nil
}

// NewID returns a time-ordered identifier so index scans follow creation order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// prepare assigns an id when missing and stamps _id and type into the body.
func prepare(doc Document) (Document, error) {
	if len(doc.Body) == 0 {
		return Document{}, ErrEmptyBody
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(doc.Body, &fields); err != nil {
		return Document{}, fmt.Errorf("document body must be a JSON object: %w", err)
	}

	id := strings.TrimSpace(doc.ID)
	if id == "" {
		if raw, ok := fields["_id"]; ok {
			_ = json.Unmarshal(raw, &id)
			id = strings.TrimSpace(id)
		}
	}
	if id == "" {
		id = NewID()
	}

	docType := strings.TrimSpace(doc.Type)
	if docType == "" {
		if raw, ok := fields["type"]; ok {
			_ = json.Unmarshal(raw, &docType)
		}
	}

	idRaw, _ := json.Marshal(id)
	typeRaw, _ := json.Marshal(docType)
	fields["_id"] = idRaw
	fields["type"] = typeRaw

	body, err := json.Marshal(fields)
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}
	return Document{ID: id, Type: docType, Body: body}, nil
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
