package agent

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/agentloop/grammar"
	"github.com/sammcj/agentloop/tools"
)

// InlinePrompt is the system prompt for single-shot code completion.
const InlinePrompt = `You are an inline code completion assistant.
Given the code before the cursor and the programming language, suggest the next few lines of code.

Rules:
- Only output the code completion, nothing else.
- Do NOT include any explanation, comments about what you're doing, or markdown formatting.
- Do NOT repeat the code that was already written.
- Keep suggestions short (1-5 lines).
- Match the coding style and indentation of the existing code.
- If you're unsure, provide the most likely completion.
`

var promptExamples = map[string]map[string]string{
	tools.ReadFile:  {"path": "/Users/me/project/main.py"},
	tools.WriteFile: {"path": "hello.py", "content": "print('hello')"},
	tools.RunBash:   {"command": "ls -la"},
}

// DefaultSystemPrompt describes the tool-call grammar and the given tools.
func DefaultSystemPrompt(specs []mcp.Tool) string {
	var b strings.Builder
	b.WriteString("You are a helpful AI coding assistant running inside the editor.\n")
	b.WriteString("You help users understand, write, debug, and refactor code.\n\n")
	b.WriteString("You have access to the following tools:\n\n")
	for i, spec := range specs {
		fmt.Fprintf(&b, "%d. %s(%s) - %s\n", i+1, spec.Name, strings.Join(spec.InputSchema.Required, ", "), spec.Description)
	}

	b.WriteString("\nTo use a tool, output a line in EXACTLY this format (no extra text on that line):\n")
	b.WriteString(grammar.Marker + ` tool_name(arg1="value1", arg2="value2")` + "\n\n")

	b.WriteString("Examples:\n")
	for _, spec := range specs {
		if args, ok := promptExamples[spec.Name]; ok {
			b.WriteString(grammar.Format(spec.Name, args) + "\n")
		}
	}

	b.WriteString(`
Rules:
- Use EXACTLY one TOOL_CALL per line.
- Always wrap argument values in double quotes.
- After a tool result is returned to you, continue your response using that information.
- If you don't need a tool, just answer directly.
- Be concise and accurate.
- When explaining code, break it down into logical sections.
`)
	return b.String()
}
