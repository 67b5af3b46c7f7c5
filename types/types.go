package types

// Role identifies the author of a turn in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a message in the conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions carries per-call limits for a model request.
// Zero values mean "use the client default".
type CompletionOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}
