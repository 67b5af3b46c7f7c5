// Package transcript holds the conversation state of a single agent run.
//
// A Transcript always starts with exactly one system turn. It is owned by one
// run and is not safe for concurrent use.
package transcript

import (
	"fmt"

	"github.com/sammcj/agentloop/types"
)

// Transcript is the ordered list of turns sent to the model.
type Transcript struct {
	messages []types.Message
}

// New creates a transcript seeded with the system prompt.
func New(systemPrompt string) *Transcript {
	return &Transcript{
		messages: []types.Message{{Role: types.RoleSystem, Content: systemPrompt}},
	}
}

// Seed appends prior conversation turns. Only user and assistant turns are
// kept; everything else is dropped without error. Order is preserved.
func (t *Transcript) Seed(history []types.Message) {
	for _, msg := range history {
		if msg.Role != types.RoleUser && msg.Role != types.RoleAssistant {
			continue
		}
		t.messages = append(t.messages, types.Message{Role: msg.Role, Content: msg.Content})
	}
}

// AddUser appends the user's message. When workspacePath is set a note naming
// it is prepended so the model can build paths.
func (t *Transcript) AddUser(message, workspacePath string) {
	if workspacePath != "" {
		message = WorkspaceNote(workspacePath) + message
	}
	t.messages = append(t.messages, types.Message{Role: types.RoleUser, Content: message})
}

// AddAssistant appends a model reply exactly as received.
func (t *Transcript) AddAssistant(reply string) {
	t.messages = append(t.messages, types.Message{Role: types.RoleAssistant, Content: reply})
}

// AddToolResult folds a tool result into a user turn.
func (t *Transcript) AddToolResult(tool, result string) {
	t.messages = append(t.messages, types.Message{Role: types.RoleUser, Content: ToolResultTurn(tool, result)})
}

// Messages returns a copy of the turns.
func (t *Transcript) Messages() []types.Message {
	out := make([]types.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of turns, including the system turn.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// WorkspaceNote is the prefix added to a user message when a workspace root
// is known.
func WorkspaceNote(path string) string {
	return fmt.Sprintf("\n[User's workspace root: %s]\n", path)
}

// ToolResultTurn is the content of the user turn that carries a tool result
// back to the model.
func ToolResultTurn(tool, result string) string {
	return fmt.Sprintf("[Tool Result for %s]:\n%s\n\nNow continue your response using the tool result above.", tool, result)
}
