package vectorstore

import (
	"fmt"
	"regexp"
)

// Document represents a document to be stored in the vector store.
type Document struct {
	// ID is the unique document identifier. Auto-generated if empty.
	ID string

	// Content is the text to embed and store.
	Content string

	// Metadata holds arbitrary string key-value pairs stored with the document.
	Metadata map[string]string

	// Collection overrides the default collection for this document.
	Collection string
}

// SearchResult represents a single similarity search hit.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]string
}

// collectionNameRe restricts collection names to a safe character set.
var collectionNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// ValidateCollectionName checks that a collection name is non-empty and uses
// only alphanumerics, dots, underscores, and hyphens (max 64 characters).
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidCollectionName)
	}
	if !collectionNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}
