// Package vectorstore defines the interface boundary to the persistent
// vector index.
//
// The engine never treats the index as a source of record: per-collection
// indices and the master index are eventually-consistent caches of the
// filesystem truth, rebuilt by the synchronizers. Implementations must
// support safe concurrent reads and a safe batched Upsert call; the engine
// performs all per-collection computation first and writes once, serially,
// at the end.
//
// Distances are dissimilarity scores: lower means more relevant. They carry
// no units beyond being comparable within one store's embedding space.
package vectorstore

import "context"

// Metadata is the per-entry metadata carried alongside a document.
type Metadata struct {
	// Name is the entry's own id (spell name or collection id).
	Name string `json:"name"`

	// Hash is the content digest used for staleness checks.
	Hash string `json:"hash"`

	// SpellCount is the number of eligible source files in a collection.
	// Only set on master-index entries.
	SpellCount int `json:"spell_count,omitempty"`
}

// QueryResult holds the matches of one nearest-neighbor query, aligned by
// position.
type QueryResult struct {
	IDs       []string
	Distances []float64
	Documents []string
	Metadatas []Metadata
}

// GetResult holds a point lookup's entries, aligned by position.
type GetResult struct {
	IDs       []string
	Metadatas []Metadata
}

// Collection is a named index of documents.
type Collection interface {
	// Name returns the collection's name.
	Name() string

	// Query runs a top-k nearest-neighbor search for the given text.
	Query(ctx context.Context, text string, k int) (QueryResult, error)

	// Get returns the entries for the given ids, omitting missing ones.
	// A nil ids slice returns every entry.
	Get(ctx context.Context, ids []string) (GetResult, error)

	// Upsert inserts or replaces entries as one batch. The three slices
	// must have equal length.
	Upsert(ctx context.Context, ids []string, documents []string, metadatas []Metadata) error
}

// Store manages named collections.
type Store interface {
	// GetOrCreate returns the named collection, creating it when absent.
	GetOrCreate(ctx context.Context, name string) (Collection, error)

	// Get returns the named collection or ErrCollectionNotFound.
	Get(ctx context.Context, name string) (Collection, error)

	// List returns the names of all existing collections.
	List(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}
