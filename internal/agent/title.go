package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const titlePrompt = `Generate a concise 4-6 word title for a chat that starts with this message. Return ONLY the title, no quotes or punctuation at the end.

Message: %q`

// GenerateTitle produces a short chat title from the first user message,
// falling back to a prefix of the message itself when the model call fails.
func GenerateTitle(ctx context.Context, model Model, userMessage string, log zerolog.Logger) string {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: fmt.Sprintf(titlePrompt, userMessage)}},
	}}

	resp, err := model.GenerateContent(ctx, contents, nil)
	if err != nil {
		log.Error().Err(err).Msg("title generation failed")
		return fallbackTitle(userMessage)
	}
	title := strings.Trim(strings.TrimSpace(resp.Text()), `"'`)
	if title == "" {
		return fallbackTitle(userMessage)
	}
	if len(title) > 60 {
		title = title[:60]
	}
	return title
}

func fallbackTitle(userMessage string) string {
	if len(userMessage) > 50 {
		return userMessage[:50]
	}
	return userMessage
}
