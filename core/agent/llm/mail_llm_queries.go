package llm

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"mailagent/core/port/out"
)

// DesignQueries produces 1-3 focused retrieval questions for the email body.
// Malformed output falls back to quoted-item extraction, then to the first
// 100 characters of the body.
func (c *Client) DesignQueries(ctx context.Context, sel out.ModelSelection, body string) ([]string, error) {
	raw, err := c.completePrompt(ctx, sel, fmt.Sprintf(designQueriesPrompt, body))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err == nil && len(parsed.Queries) > 0 {
		return capQueries(parsed.Queries), nil
	}

	if queries := extractQuotedItems(raw); len(queries) > 0 {
		return capQueries(queries), nil
	}

	c.log.Warn().Str("raw", truncate(raw, 200)).Msg("unparseable queries, using body prefix")
	return []string{firstChars(body, 100)}, nil
}

func capQueries(queries []string) []string {
	out := queries[:0:0]
	for _, q := range queries {
		if q != "" {
			out = append(out, q)
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}
