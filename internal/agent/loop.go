// Package agent runs the tool-calling conversation loop over the user's
// financial data. The model decides which tools to call; the loop executes
// them, feeds results back, and streams progress to the caller through
// events.
package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/finybot/finybot/internal/domain"
)

const systemPrompt = `You are FinyBot, a helpful financial assistant for credit card expense tracking.
You help users understand their spending by querying their transaction data.

Rules:
- ALWAYS use the provided tools to fetch real data. Never make up numbers.
- Format all monetary amounts in INR (₹).
- When showing multiple transactions, use markdown tables or lists for clarity.
- If the user asks about their cards and you're unsure which providers they have, call list_card_providers first.
- Support multi-step reasoning: e.g., to compare months, fetch data for each month then compare.
- Keep responses concise and actionable.
- When the user asks about "last month" or "this month", infer the billing month in YYYY-MM format based on common sense.
- If a query returns no results, suggest the user check their filters or try a different time period.
`

// maxIterations caps tool-calling rounds per user message so a confused
// model cannot loop forever.
const maxIterations = 10

// maxIterationsMessage is the degraded final answer when the cap is hit.
const maxIterationsMessage = "I've reached the maximum number of tool calls. Here's what I found so far."

// Model is the slice of the genai client the loop needs; tests substitute a
// scripted implementation.
type Model interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiModel adapts a genai client to the Model interface.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel binds a client to a model name.
func NewGeminiModel(client *genai.Client, model string) *GeminiModel {
	return &GeminiModel{client: client, model: model}
}

// GenerateContent implements Model.
func (m *GeminiModel) GenerateContent(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.client.Models.GenerateContent(ctx, m.model, contents, cfg)
}

// Loop drives one agent conversation turn.
type Loop struct {
	model Model
	tools *Toolbox
	log   zerolog.Logger
}

// NewLoop wires a model to a toolbox.
func NewLoop(model Model, tools *Toolbox, log zerolog.Logger) *Loop {
	return &Loop{
		model: model,
		tools: tools,
		log:   log.With().Str("component", "agent").Logger(),
	}
}

// Run processes one user message and emits events as the agent works. It
// always ends with either a message followed by done, or a single error
// event; emit is never called after Run returns.
func (l *Loop) Run(ctx context.Context, uid, userMessage string, history []domain.Message, emit func(Event)) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("agent run panicked")
			emit(Event{Type: EventError, Err: fmt.Sprintf("%v", r)})
		}
	}()

	contents := buildContents(history)
	contents = append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: userMessage}},
	})

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		Tools:             l.tools.Declarations(),
		Temperature:       genai.Ptr[float32](0.3),
	}

	var collected []domain.ToolCall

	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := l.model.GenerateContent(ctx, contents, cfg)
		if err != nil {
			l.log.Error().Err(err).Int("iteration", iteration).Msg("model call failed")
			emit(Event{Type: EventError, Err: err.Error()})
			return
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			emit(Event{Type: EventError, Err: "model returned no candidates"})
			return
		}
		candidate := resp.Candidates[0]

		hasFunctionCall := false
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall == nil {
				continue
			}
			hasFunctionCall = true
			name := part.FunctionCall.Name
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}

			emit(Event{Type: EventToolCall, Name: name, Arguments: args})

			result := l.tools.Execute(ctx, uid, name, args)
			summary := summarizeResult(name, result)

			emit(Event{Type: EventToolResult, Name: name, Result: summary})
			collected = append(collected, domain.ToolCall{Name: name, Arguments: args, Result: summary})

			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
				},
				&genai.Content{
					Role: "user",
					Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
						Name:     name,
						Response: map[string]any{"result": result},
					}}},
				},
			)
		}

		if !hasFunctionCall {
			text := ""
			if len(candidate.Content.Parts) > 0 {
				text = candidate.Content.Parts[0].Text
			}
			emit(Event{Type: EventMessage, Content: text, ToolCalls: collected})
			emit(Event{Type: EventDone})
			return
		}
	}

	emit(Event{Type: EventMessage, Content: maxIterationsMessage, ToolCalls: collected})
	emit(Event{Type: EventDone})
}
