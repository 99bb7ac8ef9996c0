package domain

import "time"

// Chat is one conversation with the agent.
type Chat struct {
	ID        string    `firestore:"-" json:"id"`
	Title     string    `firestore:"title" json:"title"`
	CreatedAt time.Time `firestore:"createdAt" json:"created_at"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updated_at"`
}

// ToolCall records one tool invocation made by the agent while producing an
// assistant message. Result holds the compact summary, not the full JSON the
// model saw; the trail is append-only and is replayed to rebuild model
// context on later turns.
type ToolCall struct {
	Name      string         `firestore:"name" json:"name"`
	Arguments map[string]any `firestore:"arguments" json:"arguments"`
	Result    string         `firestore:"result" json:"result,omitempty"`
}

// Message is one turn in a chat. Role is "user" or "assistant".
type Message struct {
	ID        string     `firestore:"-" json:"id"`
	Role      string     `firestore:"role" json:"role"`
	Content   string     `firestore:"content" json:"content,omitempty"`
	ToolCalls []ToolCall `firestore:"toolCalls" json:"tool_calls,omitempty"`
	CreatedAt time.Time  `firestore:"createdAt" json:"created_at"`
}
