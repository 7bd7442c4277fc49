package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

// Embedder wraps the embedding port and resolves vector dimensionality.
type Embedder struct {
	port out.EmbeddingPort
	log  zerolog.Logger
}

// NewEmbedder creates an embedder.
func NewEmbedder(port out.EmbeddingPort, log zerolog.Logger) *Embedder {
	return &Embedder{
		port: port,
		log:  log.With().Str("component", "rag_embedder").Logger(),
	}
}

// dimensionByName maps well-known embedding model name fragments to their
// output dimension, saving a probe round trip.
func dimensionByName(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "embedding-8b"):
		return 4096
	case strings.Contains(lower, "embedding-4b"):
		return 2560
	case strings.Contains(lower, "embedding-2b"), strings.Contains(lower, "embedding-1.5b"):
		return 1024
	}
	return 0
}

// Dimension resolves the embedding dimension of the selected model, first by
// name pattern, then by embedding a probe string.
func (e *Embedder) Dimension(ctx context.Context, sel out.ModelSelection) (int, error) {
	if dim := dimensionByName(sel.Model); dim > 0 {
		return dim, nil
	}

	vecs, err := e.port.Embed(ctx, sel, []string{"test"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, apperr.ExternalError("embedding", nil).WithDetail("model", sel.Model)
	}
	dim := len(vecs[0])
	e.log.Info().Str("model", sel.Model).Int("dimension", dim).Msg("dimension detected by probe")
	return dim, nil
}

// EmbedTexts embeds a batch of texts.
func (e *Embedder) EmbedTexts(ctx context.Context, sel out.ModelSelection, texts []string) ([][]float32, error) {
	return e.port.Embed(ctx, sel, texts)
}
