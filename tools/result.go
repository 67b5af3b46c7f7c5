package tools

import "fmt"

// ErrorKind classifies a failed tool execution.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindReadFailed      ErrorKind = "read_failed"
	KindWriteFailed     ErrorKind = "write_failed"
	KindTimeout         ErrorKind = "timeout"
	KindCommandFailed   ErrorKind = "command_failed"
	KindUnknownTool     ErrorKind = "unknown_tool"
	KindMissingArgument ErrorKind = "missing_argument"
	KindDenied          ErrorKind = "denied"
)

// Result is the outcome of one tool execution. Exactly one of Output or Kind
// is meaningful: a zero Kind means success.
type Result struct {
	Tool      string
	Output    string
	Kind      ErrorKind
	Detail    string
	Truncated bool
}

// OK builds a successful result.
func OK(tool, output string) Result {
	return Result{Tool: tool, Output: output}
}

// Failure builds a failed result of the given kind.
func Failure(tool string, kind ErrorKind, detail string) Result {
	return Result{Tool: tool, Kind: kind, Detail: detail}
}

// IsError reports whether the execution failed.
func (r Result) IsError() bool {
	return r.Kind != ""
}

// Text renders the result the way the model sees it.
func (r Result) Text() string {
	switch r.Kind {
	case "":
		return r.Output
	case KindNotFound:
		return fmt.Sprintf("Error: File not found: %s", r.Detail)
	case KindReadFailed:
		return fmt.Sprintf("Error reading file: %s", r.Detail)
	case KindWriteFailed:
		return fmt.Sprintf("Error writing file: %s", r.Detail)
	case KindTimeout:
		return fmt.Sprintf("Error: Command timed out after %s seconds.", r.Detail)
	case KindCommandFailed:
		return fmt.Sprintf("Error running command: %s", r.Detail)
	case KindUnknownTool:
		return fmt.Sprintf("Unknown tool: %s", r.Detail)
	case KindMissingArgument:
		return fmt.Sprintf("Error: missing argument %s", r.Detail)
	default:
		return fmt.Sprintf("Error: %s", r.Detail)
	}
}

func (r Result) String() string {
	return r.Text()
}
