package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

// retrieverK sets how many chunks each category view pulls. Complaints and
// feedback need less breadth than open product enquiries.
var retrieverK = map[domain.EmailCategory]int{
	domain.CategoryProductEnquiry:    12,
	domain.CategoryCustomerComplaint: 10,
	domain.CategoryCustomerFeedback:  8,
}

const defaultK = 10

// Retriever runs category-specialised similarity searches over the
// dimension-keyed store.
type Retriever struct {
	embedder *Embedder
	store    out.VectorStorePort
	log      zerolog.Logger
}

// NewRetriever creates a retriever.
func NewRetriever(embedder *Embedder, store out.VectorStorePort, log zerolog.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		log:      log.With().Str("component", "rag_retriever").Logger(),
	}
}

// KFor returns the retrieval depth for a category.
func KFor(category domain.EmailCategory) int {
	if k, ok := retrieverK[category]; ok {
		return k
	}
	return defaultK
}

// Retrieve embeds the query and returns the top chunks for the category.
func (r *Retriever) Retrieve(ctx context.Context, sel out.ModelSelection, category domain.EmailCategory, query string) ([]out.ScoredChunk, error) {
	dim, err := r.embedder.Dimension(ctx, sel)
	if err != nil {
		return nil, err
	}
	if !r.store.Exists(dim) {
		return nil, apperr.NotFound("vector store").WithDetail("dimension", dim)
	}

	vecs, err := r.embedder.EmbedTexts(ctx, sel, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, apperr.ExternalError("embedding", nil)
	}

	return r.store.Search(ctx, dim, vecs[0], KFor(category))
}

// JoinChunks concatenates retrieved chunks into one context block.
func JoinChunks(chunks []out.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}
