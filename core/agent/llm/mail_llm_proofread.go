package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"mailagent/core/port/out"
)

// Proofread judges a draft against the original message.
// When the structured verdict cannot be decoded the draft passes, so a
// flaky proofreader never blocks the pipeline.
func (c *Client) Proofread(ctx context.Context, sel out.ModelSelection, original, draft string) (out.ProofreadResult, error) {
	raw, err := c.completePrompt(ctx, sel, fmt.Sprintf(proofreaderPrompt, original, draft))
	if err != nil {
		return out.ProofreadResult{}, err
	}

	var parsed struct {
		Send     bool   `json:"send"`
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err == nil {
		return out.ProofreadResult{
			Sendable: parsed.Send,
			Feedback: parsed.Feedback,
		}, nil
	}

	// free-text verdict; look for an explicit rejection
	lower := strings.ToLower(raw)
	if strings.Contains(lower, `"send": false`) || strings.Contains(lower, "not sendable") {
		return out.ProofreadResult{Feedback: raw}, nil
	}

	if email, ok := extractEmailField(raw); ok {
		return out.ProofreadResult{Sendable: true, Email: email}, nil
	}
	return out.ProofreadResult{Sendable: true}, nil
}
