package tools

import "github.com/mark3labs/mcp-go/mcp"

// Capability names. The set is closed.
const (
	ReadFile  = "read_file"
	WriteFile = "write_file"
	RunBash   = "run_bash"
)

// Specs returns the MCP tool specifications for every capability, in a
// stable order.
func Specs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        ReadFile,
			Description: "Read the full contents of a file at the given path.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "The absolute or relative file path to read.",
					},
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        WriteFile,
			Description: "Write content to a file at the given path. Creates the file if it doesn't exist, overwrites if it does.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "The file path to write to.",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "The content to write to the file.",
					},
				},
				Required: []string{"path", "content"},
			},
		},
		{
			Name:        RunBash,
			Description: "Run a bash command and return the output. Use for listing files, searching, or running scripts.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The bash command to execute.",
					},
				},
				Required: []string{"command"},
			},
		},
	}
}
