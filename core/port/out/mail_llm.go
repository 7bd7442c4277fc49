package out

import (
	"context"

	"mailagent/core/domain"
)

// ModelSelection is the resolved model + endpoint for one user operation.
type ModelSelection struct {
	Model   string
	APIKey  string
	BaseURL string
}

// DraftInput is the state the writer works from.
type DraftInput struct {
	Sender    string
	Subject   string
	Body      string
	Category  domain.EmailCategory
	Context   string // retrieved knowledge-base context
	Greeting  string
	Closing   string
	Signature string
}

// ProofreadResult is the structured verdict on a draft.
type ProofreadResult struct {
	Sendable bool
	Feedback string
	Email    string // optionally rewritten email text
}

// ChatMessage is one turn of an LLM conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// LLMPort covers every model invocation the pipeline makes. All calls are
// synchronous and run on worker goroutines.
type LLMPort interface {
	// Classify assigns one of the four support categories.
	Classify(ctx context.Context, sel ModelSelection, subject, body string) (domain.EmailCategory, error)

	// DesignQueries produces 1-3 focused retrieval questions for the body.
	DesignQueries(ctx context.Context, sel ModelSelection, body string) ([]string, error)

	// Draft writes a reply. history carries prior drafts and proofreader
	// feedback for retry trials.
	Draft(ctx context.Context, sel ModelSelection, in DraftInput, history []ChatMessage) (string, error)

	// Proofread judges a draft against the original message.
	Proofread(ctx context.Context, sel ModelSelection, original, draft string) (ProofreadResult, error)

	// Summarize produces a 50-100 character summary of text.
	Summarize(ctx context.Context, sel ModelSelection, text string) (string, error)

	// Answer composes an answer for one query given retrieved context.
	Answer(ctx context.Context, sel ModelSelection, category domain.EmailCategory, query, docs string) (string, error)

	// Probe performs a minimal completion round trip for connectivity tests.
	Probe(ctx context.Context, sel ModelSelection) error
}

// EmbeddingPort computes embedding vectors.
type EmbeddingPort interface {
	// Embed returns one vector per input text.
	Embed(ctx context.Context, sel ModelSelection, texts []string) ([][]float32, error)
}
