package agent

import (
	"google.golang.org/genai"

	"github.com/finybot/finybot/internal/domain"
)

// buildContents replays stored chat history as model context. Assistant
// turns that used tools are expanded back into the function-call and
// function-response exchange the model originally saw, so multi-turn
// conversations keep their grounding.
func buildContents(history []domain.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range history {
		switch msg.Role {
		case "user":
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case "assistant":
			for _, tc := range msg.ToolCalls {
				contents = append(contents, &genai.Content{
					Role: "model",
					Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{
						Name: tc.Name,
						Args: tc.Arguments,
					}}},
				})
				if tc.Result != "" {
					contents = append(contents, &genai.Content{
						Role: "user",
						Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
							Name:     tc.Name,
							Response: map[string]any{"result": tc.Result},
						}}},
					})
				}
			}
			if msg.Content != "" {
				contents = append(contents, &genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: msg.Content}},
				})
			}
		}
	}
	return contents
}
