package tools

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrUnknownTool is returned for names outside the capability set.
var ErrUnknownTool = errors.New("unknown tool")

// MissingArgumentError reports a required argument that was not supplied.
type MissingArgumentError struct {
	Tool string
	Arg  string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing argument %s for tool %s", e.Arg, e.Tool)
}

// Validator checks parsed invocations against the tool schemas before dispatch
type Validator struct {
	tools map[string]mcp.Tool
}

// NewValidator creates a new validator with the given tools
func NewValidator(tools []mcp.Tool) *Validator {
	toolMap := make(map[string]mcp.Tool)
	for _, tool := range tools {
		toolMap[tool.Name] = tool
	}
	return &Validator{tools: toolMap}
}

// Validate checks that the tool exists and that every required argument is
// present. Unknown extra arguments are ignored.
func (v *Validator) Validate(name string, args map[string]string) error {
	tool, ok := v.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	for _, required := range tool.InputSchema.Required {
		if _, ok := args[required]; !ok {
			return &MissingArgumentError{Tool: name, Arg: required}
		}
	}

	return nil
}
