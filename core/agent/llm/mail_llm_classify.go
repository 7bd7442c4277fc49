package llm

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"mailagent/core/domain"
	"mailagent/core/port/out"
)

// Classify assigns one of the four support categories to an email.
// Malformed model output falls back to keyword extraction, then to
// product_enquiry.
func (c *Client) Classify(ctx context.Context, sel out.ModelSelection, subject, body string) (domain.EmailCategory, error) {
	content := subject + "\n\n" + body
	raw, err := c.completePrompt(ctx, sel, fmt.Sprintf(categorizePrompt, content))
	if err != nil {
		return "", err
	}

	var parsed struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err == nil {
		if cat := domain.EmailCategory(parsed.Category); domain.ValidCategory(cat) {
			return cat, nil
		}
	}

	if cat, ok := extractCategory(raw); ok {
		return cat, nil
	}

	c.log.Warn().Str("raw", truncate(raw, 200)).Msg("unparseable category, defaulting to product_enquiry")
	return domain.CategoryProductEnquiry, nil
}
