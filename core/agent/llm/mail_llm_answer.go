package llm

import (
	"context"
	"fmt"

	"mailagent/core/domain"
	"mailagent/core/port/out"
)

// Answer composes an answer for one query given retrieved context, using the
// category-specific prompt.
func (c *Client) Answer(ctx context.Context, sel out.ModelSelection, category domain.EmailCategory, query, docs string) (string, error) {
	var tmpl string
	switch category {
	case domain.CategoryCustomerComplaint:
		tmpl = answerComplaintPrompt
	case domain.CategoryCustomerFeedback:
		tmpl = answerFeedbackPrompt
	default:
		tmpl = answerProductEnquiryPrompt
	}
	return c.completePrompt(ctx, sel, fmt.Sprintf(tmpl, query, docs))
}
