package store

import (
	"context"

	"lawquery/internal/corpus"
)

// Filters restricts a search to a subset of the corpus. Zero value means
// unrestricted. All reads additionally honor the store's active-document
// flag; inactive documents never surface.
type Filters struct {
	DocTypes []corpus.DocType // hard document-type whitelist
	DocRefs  []corpus.DocRef  // restrict to specific documents
}

// ChunkStore is the read-side capability the pipeline consumes. The
// pipeline never writes; ingestion is a separate concern.
type ChunkStore interface {
	// VectorSearch returns the topK chunks nearest to the query
	// embedding, VectorScore populated with cosine similarity.
	VectorSearch(ctx context.Context, embedding []float32, f Filters, topK int) ([]corpus.Chunk, error)

	// KeywordSearch runs a ranked full-text query over chunk text,
	// KeywordScore populated with the rank score.
	KeywordSearch(ctx context.Context, terms []string, f Filters, topK int) ([]corpus.Chunk, error)

	// GetByPointer fetches the chunk at an exact structural position,
	// or nil when absent.
	GetByPointer(ctx context.Context, documentID string, p corpus.Pointer) (*corpus.Chunk, error)

	// GetSiblings fetches clause chunks within +/-window of the pointer
	// inside the same article, excluding the pointer itself.
	GetSiblings(ctx context.Context, documentID string, p corpus.Pointer, window int) ([]corpus.Chunk, error)

	// GetAnnotation fetches the explanatory note attached to the
	// pointed-at position, or nil when absent.
	GetAnnotation(ctx context.Context, documentID string, p corpus.Pointer) (*corpus.Chunk, error)
}
