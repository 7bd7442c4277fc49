package llm

import (
	"context"
	"fmt"

	"mailagent/core/port/out"
)

// Summarize produces a 50-100 character Chinese summary of text.
func (c *Client) Summarize(ctx context.Context, sel out.ModelSelection, text string) (string, error) {
	return c.completePrompt(ctx, sel, fmt.Sprintf(summaryPrompt, text))
}
