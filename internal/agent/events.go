package agent

import "github.com/finybot/finybot/internal/domain"

// EventType names the stream events emitted while the agent works. The
// values are the SSE event names the frontend listens for.
type EventType string

const (
	EventChatID     EventType = "chat_id"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventMessage    EventType = "message"
	EventError      EventType = "error"
	EventDone       EventType = "done"
)

// Event is one step of an agent run. Which fields are set depends on Type:
// tool_call carries Name and Arguments, tool_result carries Name and Result,
// message carries Content and the accumulated ToolCalls, error carries Err.
type Event struct {
	Type      EventType
	ChatID    string
	Name      string
	Arguments map[string]any
	Result    string
	Content   string
	ToolCalls []domain.ToolCall
	Err       string
}
