package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates a configuration error
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrLLMResponse indicates a failed or invalid LLM response
	ErrLLMResponse = errors.New("invalid LLM response")

	// ErrToolExecution indicates a tool execution failure
	ErrToolExecution = errors.New("tool execution failed")

	// ErrAudit indicates the audit store could not be read or written
	ErrAudit = errors.New("audit store failed")
)

// ConfigError wraps configuration-related errors
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error in %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// LLMError wraps LLM-related errors
type LLMError struct {
	Operation  string
	Message    string
	StatusCode int
	Err        error
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM error during %s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("LLM error during %s: %s", e.Operation, e.Message)
}

func (e *LLMError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrLLMResponse, e.Err}
	}
	return []error{ErrLLMResponse}
}

// ToolError wraps tool-related errors
type ToolError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool error in %s: %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error {
	return ErrToolExecution
}

// AuditError wraps audit store errors
type AuditError struct {
	Operation string
	Message   string
	Err       error
}

func (e *AuditError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audit error during %s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("audit error during %s: %s", e.Operation, e.Message)
}

func (e *AuditError) Unwrap() error {
	return ErrAudit
}
