package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("signalbank.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// DefaultCollection is the default collection name.
	DefaultCollection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/signalbank/vectorstore"
	}
	if c.DefaultCollection == "" {
		c.DefaultCollection = "experiences"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies. It provides in-memory storage with persistence to gob files,
// which keeps the episodic store self-contained with no external service.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("ChromemStore initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("default_collection", config.DefaultCollection),
	)

	return store, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// createEmbeddingFunc creates a chromem.EmbeddingFunc from our Embedder interface.
func (s *ChromemStore) createEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// getOrCreateCollection gets or creates a collection with the embedding function.
func (s *ChromemStore) getOrCreateCollection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	collection, err := s.db.GetOrCreateCollection(name, nil, s.createEmbeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return collection, nil
}

// AddDocuments adds documents to the vector store.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()

	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	// Determine collection name from first document
	collectionName := s.config.DefaultCollection
	if docs[0].Collection != "" {
		collectionName = docs[0].Collection
	}

	// All documents in a batch must target the same collection
	for i, doc := range docs {
		if doc.Collection != "" && doc.Collection != collectionName {
			return nil, fmt.Errorf("document at index %d has collection %q but batch targets %q",
				i, doc.Collection, collectionName)
		}
	}

	span.SetAttributes(attribute.String("collection", collectionName))

	collection, err := s.getOrCreateCollection(collectionName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	chromemDocs := make([]chromem.Document, len(docs))
	ids := make([]string, len(docs))
	texts := make([]string, len(docs))

	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			ids[i] = fmt.Sprintf("doc_%d_%d", timeNow().UnixNano(), i)
			s.logger.Warn("auto-generated document ID - caller should provide explicit IDs",
				zap.String("generated_id", ids[i]),
				zap.Int("index", i),
			)
		}
		texts[i] = doc.Content
	}

	// Generate embeddings in batch
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		recordOperation("add", "embedding_error")
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1 since we already have embeddings
	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOperation("add", "error")
		return nil, fmt.Errorf("%w: adding documents: %v", ErrStoreUnavailable, err)
	}

	span.SetAttributes(attribute.Int("documents_added", len(ids)))
	span.SetStatus(codes.Ok, "success")
	recordOperation("add", "success")

	s.logger.Debug("added documents to chromem",
		zap.String("collection", collectionName),
		zap.Int("count", len(docs)),
	)

	return ids, nil
}

// Search performs similarity search in the default collection.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return s.SearchInCollection(ctx, s.config.DefaultCollection, query, k, nil)
}

// SearchInCollection performs similarity search in a specific collection.
func (s *ChromemStore) SearchInCollection(ctx context.Context, collectionName, query string, k int, filters map[string]string) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.SearchInCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("k", k),
	)

	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	start := timeNow()

	collection := s.db.GetCollection(collectionName, s.createEmbeddingFunc())
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	// Cap k at collection size (chromem requires nResults <= doc count)
	docCount := collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := collection.Query(ctx, query, k, filters, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOperation("search", "error")
		return nil, fmt.Errorf("%w: querying collection %s: %v", ErrStoreUnavailable, collectionName, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")
	recordOperation("search", "success")
	observeSearchDuration(timeNow().Sub(start))

	s.logger.Debug("searched chromem collection",
		zap.String("collection", collectionName),
		zap.Int("k", k),
		zap.Int("results", len(searchResults)),
	)

	return searchResults, nil
}

// DeleteDocuments deletes documents by their IDs from a collection.
func (s *ChromemStore) DeleteDocuments(ctx context.Context, collectionName string, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDocuments")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	collection := s.db.GetCollection(collectionName, s.createEmbeddingFunc())
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	// Delete each document, collecting failures
	var failures []string
	for _, id := range ids {
		if err := collection.Delete(ctx, nil, nil, id); err != nil {
			span.RecordError(err)
			s.logger.Error("failed to delete document",
				zap.String("collection", collectionName),
				zap.String("id", id),
				zap.Error(err),
			)
			failures = append(failures, id)
		}
	}

	if len(failures) > 0 {
		span.SetStatus(codes.Error, "partial deletion failure")
		recordOperation("delete", "error")
		return fmt.Errorf("failed to delete %d of %d documents: %v", len(failures), len(ids), failures)
	}

	span.SetStatus(codes.Ok, "success")
	recordOperation("delete", "success")
	return nil
}

// CreateCollection creates a new collection.
func (s *ChromemStore) CreateCollection(ctx context.Context, collectionName string, vectorSize int) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("vector_size", vectorSize),
	)

	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	// Accept 0 as "use configured default"
	if vectorSize == 0 {
		vectorSize = s.config.VectorSize
	}
	if vectorSize != s.config.VectorSize {
		return fmt.Errorf("vector size %d does not match configured size %d", vectorSize, s.config.VectorSize)
	}

	// Must pass the embedding function, not nil, because chromem-go sets the
	// default OpenAI embedder when nil is passed for persisted collections
	if existing := s.db.GetCollection(collectionName, s.createEmbeddingFunc()); existing != nil {
		return ErrCollectionExists
	}

	if _, err := s.db.CreateCollection(collectionName, nil, s.createEmbeddingFunc()); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrCollectionExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", collectionName, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("created chromem collection", zap.String("collection", collectionName))
	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return false, err
	}
	return s.db.GetCollection(collectionName, s.createEmbeddingFunc()) != nil, nil
}

// Count returns the number of documents in a collection.
func (s *ChromemStore) Count(ctx context.Context, collectionName string) (int, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return 0, err
	}
	collection := s.db.GetCollection(collectionName, s.createEmbeddingFunc())
	if collection == nil {
		return 0, ErrCollectionNotFound
	}
	return collection.Count(), nil
}

// Close closes the vector store. chromem persists on write, so this is a no-op.
func (s *ChromemStore) Close() error {
	return nil
}
