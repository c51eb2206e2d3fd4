package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signalbank/internal/vectorstore"
)

// retrieveHeadroom is how many candidates beyond the requested limit a
// similarity search fetches before the recency tie-break and final cut.
const retrieveHeadroom = 8

// EpisodicStore persists full experiences with embeddings for similarity
// retrieval.
type EpisodicStore struct {
	store      vectorstore.Store
	collection string
	logger     *zap.Logger
}

// NewEpisodicStore creates an episodic store over a vector store collection.
func NewEpisodicStore(store vectorstore.Store, collection string, logger *zap.Logger) (*EpisodicStore, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EpisodicStore{
		store:      store,
		collection: collection,
		logger:     logger,
	}, nil
}

// Store persists an experience and returns its ID. A missing ID is filled
// with a UUID, a zero timestamp with the current time.
func (e *EpisodicStore) Store(ctx context.Context, exp Experience) (string, error) {
	if exp.ID == "" {
		exp.ID = "exp_" + uuid.New().String()
	}
	if exp.Timestamp.IsZero() {
		exp.Timestamp = time.Now().UTC()
	}

	doc := vectorstore.Document{
		ID:         exp.ID,
		Content:    embeddingText(exp.Input, exp.Response),
		Collection: e.collection,
		Metadata: map[string]string{
			"input":     exp.Input,
			"response":  exp.Response,
			"outcome":   exp.Outcome,
			"timestamp": exp.Timestamp.Format(time.RFC3339Nano),
		},
	}

	if _, err := e.store.AddDocuments(ctx, []vectorstore.Document{doc}); err != nil {
		return "", fmt.Errorf("storing experience: %w", err)
	}

	e.logger.Debug("stored experience",
		zap.String("id", exp.ID),
		zap.String("outcome", exp.Outcome),
	)
	return exp.ID, nil
}

// RetrieveSimilar returns up to limit experiences similar to the query,
// ordered by similarity descending with recency breaking ties. A collection
// that does not exist yet yields an empty result, not an error.
func (e *EpisodicStore) RetrieveSimilar(ctx context.Context, query string, limit int) ([]Experience, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if limit < 1 {
		limit = 1
	}

	// Fetch extra candidates so equal-similarity ties at the cut line are
	// broken by recency rather than by the store's internal order.
	results, err := e.store.SearchInCollection(ctx, e.collection, query, limit+retrieveHeadroom, nil)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return []Experience{}, nil
		}
		return nil, fmt.Errorf("retrieving similar experiences: %w", err)
	}

	experiences := make([]Experience, 0, len(results))
	for _, r := range results {
		experiences = append(experiences, experienceFromResult(r))
	}

	sort.SliceStable(experiences, func(i, j int) bool {
		if experiences[i].Similarity != experiences[j].Similarity {
			return experiences[i].Similarity > experiences[j].Similarity
		}
		return experiences[i].Timestamp.After(experiences[j].Timestamp)
	})

	if len(experiences) > limit {
		experiences = experiences[:limit]
	}
	return experiences, nil
}

// Delete removes experiences by ID.
func (e *EpisodicStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := e.store.DeleteDocuments(ctx, e.collection, ids); err != nil {
		return fmt.Errorf("deleting experiences: %w", err)
	}
	return nil
}

// Count returns the number of stored experiences.
func (e *EpisodicStore) Count(ctx context.Context) (int, error) {
	n, err := e.store.Count(ctx, e.collection)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func embeddingText(input, response string) string {
	if response == "" {
		return input
	}
	return input + "\n\n" + response
}

func experienceFromResult(r vectorstore.SearchResult) Experience {
	exp := Experience{
		ID:         r.ID,
		Similarity: r.Score,
	}
	if r.Metadata != nil {
		exp.Input = r.Metadata["input"]
		exp.Response = r.Metadata["response"]
		exp.Outcome = r.Metadata["outcome"]
		if ts, err := time.Parse(time.RFC3339Nano, r.Metadata["timestamp"]); err == nil {
			exp.Timestamp = ts
		}
	}
	if exp.Input == "" {
		exp.Input = r.Content
	}
	return exp
}
