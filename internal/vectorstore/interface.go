// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when attempting to create an existing collection.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrStoreUnavailable indicates the underlying store could not serve the request.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector storage operations.
//
// The interface is transport-agnostic. The embedded chromem implementation
// is the default; nothing in the callers assumes a local database.
type Store interface {
	// AddDocuments embeds and stores documents with their metadata.
	// The document ID is the unique identifier in the store.
	// Returns the IDs of added documents.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search performs similarity search in the default collection, returning
	// up to k results ordered by similarity score (highest first).
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// SearchInCollection performs similarity search in a specific collection.
	// Filters are applied to document metadata; only documents matching ALL
	// filter conditions are returned.
	SearchInCollection(ctx context.Context, collectionName, query string, k int, filters map[string]string) ([]SearchResult, error)

	// DeleteDocuments deletes documents by their IDs from a collection.
	DeleteDocuments(ctx context.Context, collectionName string, ids []string) error

	// CreateCollection creates a new collection. The vectorSize parameter
	// specifies the dimensionality of embeddings; 0 means the configured
	// default. Returns ErrCollectionExists if it already exists.
	CreateCollection(ctx context.Context, collectionName string, vectorSize int) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collectionName string) (bool, error)

	// Count returns the number of documents in a collection.
	// Returns ErrCollectionNotFound if the collection doesn't exist.
	Count(ctx context.Context, collectionName string) (int, error)

	// Close closes the vector store and releases resources.
	Close() error
}
