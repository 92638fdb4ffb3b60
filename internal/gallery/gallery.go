// Package gallery holds the enrolled reference set: identities and their
// face embeddings. A Gallery is built once at startup and is read-only for
// the rest of the process lifetime.
package gallery

import (
	"context"
	"errors"
	"fmt"
)

// ErrLoad is returned (wrapped) whenever a gallery cannot be loaded or fails validation.
// The capture loop cannot run without a reference set, so callers treat it as fatal.
var ErrLoad = errors.New("gallery load failed")

// Entry is one enrolled identity.
type Entry struct {
	ID        string
	Name      string
	Embedding []float32
}

// Gallery is an immutable, ordered collection of entries.
type Gallery struct {
	entries []Entry
	dim     int
	model   string
}

// Store provides gallery entries persisted outside the artifact file.
type Store interface {
	// ListGallery returns all entries in enrollment order.
	ListGallery(ctx context.Context) ([]Entry, string, error)
}

// New validates entries and returns a gallery that owns a private copy of them.
// Identity IDs must be unique and all embeddings must share one non-zero dimension.
func New(entries []Entry, model string) (*Gallery, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: gallery is empty", ErrLoad)
	}

	g := &Gallery{
		entries: make([]Entry, len(entries)),
		model:   model,
	}
	byID := make(map[string]int, len(entries))

	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty identity id", ErrLoad, i)
		}
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("%w: entry %d (%s) has an empty embedding", ErrLoad, i, e.ID)
		}
		if g.dim == 0 {
			g.dim = len(e.Embedding)
		} else if len(e.Embedding) != g.dim {
			return nil, fmt.Errorf("%w: entry %d (%s) has dimension %d, expected %d",
				ErrLoad, i, e.ID, len(e.Embedding), g.dim)
		}
		if prev, dup := byID[e.ID]; dup {
			return nil, fmt.Errorf("%w: identity id %q appears at entries %d and %d", ErrLoad, e.ID, prev, i)
		}

		name := e.Name
		if name == "" {
			name = e.ID
		}
		g.entries[i] = Entry{
			ID:        e.ID,
			Name:      name,
			Embedding: append([]float32(nil), e.Embedding...),
		}
		byID[e.ID] = i
	}

	return g, nil
}

// LoadFromStore builds a gallery from a persisted store (e.g. PostgreSQL).
func LoadFromStore(ctx context.Context, store Store) (*Gallery, error) {
	entries, model, err := store.ListGallery(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return New(entries, model)
}

// Len returns the number of enrolled identities.
func (g *Gallery) Len() int {
	return len(g.entries)
}

// Dim returns the embedding dimension shared by all entries.
func (g *Gallery) Dim() int {
	return g.dim
}

// Model returns the embedding model recorded by the enrollment step, if any.
func (g *Gallery) Model() string {
	return g.model
}

// Entry returns the entry at position i in gallery order.
// The returned embedding is shared with the gallery and must not be modified.
func (g *Gallery) Entry(i int) Entry {
	return g.entries[i]
}

// Entries returns a deep copy of all entries in gallery order.
func (g *Gallery) Entries() []Entry {
	out := make([]Entry, len(g.entries))
	for i, e := range g.entries {
		out[i] = Entry{ID: e.ID, Name: e.Name, Embedding: append([]float32(nil), e.Embedding...)}
	}
	return out
}
