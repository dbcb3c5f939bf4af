package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrExists is returned by create when the id is already taken.
	ErrExists = errors.New("entity already exists")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("entity update conflict")
	// ErrInvalidType is returned when a store cannot key an entity type.
	ErrInvalidType = errors.New("invalid entity type")
)

// Document is a stored entity. Documents are JSON objects: numbers read
// back from any store are float64.
type Document = map[string]any

// UpdateFunc computes the next version of a document. current is nil when
// the entity does not exist. Returning an error aborts the update.
type UpdateFunc func(current Document) (Document, error)

// Store is the persistence behind the entity effects. Entities are keyed by
// type and id.
type Store interface {
	// Get returns ErrNotFound when the entity does not exist.
	Get(ctx context.Context, typ, id string) (Document, error)

	// Update atomically reads the entity, applies fn and writes the result,
	// returning the stored document.
	Update(ctx context.Context, typ, id string, fn UpdateFunc) (Document, error)

	// Delete returns ErrNotFound when the entity does not exist.
	Delete(ctx context.Context, typ, id string) error

	// List returns every entity of a type ordered by id.
	List(ctx context.Context, typ string) ([]Document, error)

	Close() error
}

func encode(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// normalize gives doc the shape it will have when read back.
func normalize(doc Document) (Document, []byte, error) {
	data, err := encode(doc)
	if err != nil {
		return nil, nil, err
	}
	out, err := decode(data)
	if err != nil {
		return nil, nil, err
	}
	return out, data, nil
}

func notFound(typ, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, typ, id)
}
