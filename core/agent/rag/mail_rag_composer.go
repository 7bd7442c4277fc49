package rag

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

// Composer turns retrieval queries into an answer block for the writer.
type Composer struct {
	retriever *Retriever
	llm       out.LLMPort
	log       zerolog.Logger
}

// NewComposer creates a composer.
func NewComposer(retriever *Retriever, llm out.LLMPort, log zerolog.Logger) *Composer {
	return &Composer{
		retriever: retriever,
		llm:       llm,
		log:       log.With().Str("component", "rag_composer").Logger(),
	}
}

// Compose answers the first query only. One answer round trip per message
// keeps latency bounded; later queries rarely add information the writer
// uses. Transient failures are retried once after 2 s.
func (c *Composer) Compose(ctx context.Context, replySel, embedSel out.ModelSelection, category domain.EmailCategory, queries []string) (string, error) {
	if len(queries) == 0 {
		return "", apperr.BadRequest("no retrieval queries")
	}
	query := queries[0]

	answer, err := c.composeOne(ctx, replySel, embedSel, category, query)
	if err == nil {
		return answer, nil
	}

	c.log.Warn().Err(err).Str("query", query).Msg("compose failed, retrying once")
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return c.composeOne(ctx, replySel, embedSel, category, query)
}

func (c *Composer) composeOne(ctx context.Context, replySel, embedSel out.ModelSelection, category domain.EmailCategory, query string) (string, error) {
	chunks, err := c.retriever.Retrieve(ctx, embedSel, category, query)
	if err != nil {
		return "", err
	}
	return c.llm.Answer(ctx, replySel, category, query, JoinChunks(chunks))
}

// Test runs query retrieval for arbitrary text without touching mail state,
// returning the retrieved chunks per query.
func (c *Composer) Test(ctx context.Context, replySel, embedSel out.ModelSelection, category domain.EmailCategory, queries []string) (map[string][]out.ScoredChunk, error) {
	results := make(map[string][]out.ScoredChunk, len(queries))
	for _, q := range queries {
		chunks, err := c.retriever.Retrieve(ctx, embedSel, category, q)
		if err != nil {
			return nil, err
		}
		results[q] = chunks
	}
	return results, nil
}
