package out

import "context"

// Chunk is one indexed knowledge-base fragment.
type Chunk struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Source string    `json:"source"`
	Vector []float32 `json:"vector"`
}

// ScoredChunk pairs a chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// VectorStorePort is a dimension-keyed on-disk vector store. Each embedding
// dimension gets its own directory; switching models never mixes vectors.
type VectorStorePort interface {
	// Replace rebuilds the store for the given dimension from scratch.
	Replace(ctx context.Context, dimension int, chunks []Chunk) error

	// Add appends chunks to an existing store of the given dimension.
	Add(ctx context.Context, dimension int, chunks []Chunk) error

	// Search returns the k most similar chunks to the query vector.
	Search(ctx context.Context, dimension int, query []float32, k int) ([]ScoredChunk, error)

	// Count reports how many chunks the store of this dimension holds.
	Count(dimension int) (int, error)

	// Exists reports whether a store for this dimension is on disk.
	Exists(dimension int) bool
}
