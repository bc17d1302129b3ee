package models

import "time"

// ChatRole identifies who produced a conversation turn.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one turn of a conversation, stored as a JSON entry in the
// per-conversation history window.
type ChatTurn struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AnswerSource tags where an answer came from: the generation model, or the
// canned fallback used when generation keeps failing.
const (
	AnswerSourceAssistant = "assistant"
	AnswerSourceFallback  = "fallback"
)

// ChatAnswer is the chat service's response to an ask request. Citations is
// omitted entirely when the answer contains no source markers. Notice is set
// when the answer was produced after retrying a transient generation
// failure.
type ChatAnswer struct {
	Answer      string   `json:"answer"`
	Citations   []string `json:"citations,omitempty"`
	Source      string   `json:"source"`
	Notice      string   `json:"notice,omitempty"`
	ContextUsed int      `json:"context_used"`
}
