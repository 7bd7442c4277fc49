package llm

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"mailagent/core/port/out"
)

// Draft writes a reply email. history carries earlier drafts and proofreader
// feedback so retry trials improve on the previous attempt.
func (c *Client) Draft(ctx context.Context, sel out.ModelSelection, in out.DraftInput, history []out.ChatMessage) (string, error) {
	prompt := fmt.Sprintf(writerPrompt,
		in.Greeting, in.Closing, in.Signature,
		in.Sender, in.Subject, in.Category,
		in.Body, in.Context,
	)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	raw, err := c.complete(ctx, sel, messages)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err == nil && parsed.Email != "" {
		return parsed.Email, nil
	}

	// the writer often returns JSON with raw newlines inside the string
	if email, ok := extractEmailField(raw); ok {
		return email, nil
	}

	// free text from the model is still a usable draft
	return raw, nil
}
