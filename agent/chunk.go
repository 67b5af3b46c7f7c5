package agent

// ChunkKind tags a piece of streamed output.
type ChunkKind string

const (
	// KindProgress carries the model's reasoning before a tool call.
	KindProgress ChunkKind = "progress"
	// KindTool announces a tool execution.
	KindTool ChunkKind = "tool"
	// KindAnswer carries the final answer.
	KindAnswer ChunkKind = "answer"
	// KindError reports a model failure. It ends the run.
	KindError ChunkKind = "error"
	// KindWarning reports that the iteration limit was reached.
	KindWarning ChunkKind = "warning"
)

// Chunk is one piece of output from a run, in the order it was produced.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// State is how a run ended.
type State string

const (
	StateFinalAnswer   State = "final_answer"
	StateModelError    State = "model_error"
	StateMaxIterations State = "max_iterations"
	StateCancelled     State = "cancelled"
)

// Chunk texts shown to the user.
const (
	emptyReplyText    = "I couldn't generate a response. Please try again."
	maxIterationsText = "\n⚠️ Agent reached maximum iterations. Stopping."
)

func toolNotice(name string) string {
	return "[TOOL] Using tool: " + name + "\n"
}

func modelErrorText(err error) string {
	return "Error calling LLM: " + err.Error()
}

// Outcome summarises a finished run.
type Outcome struct {
	RunID      string
	State      State
	Iterations int
	Chunks     []Chunk
}

// Text concatenates every chunk, as a streaming client would display it.
func (o Outcome) Text() string {
	n := 0
	for _, c := range o.Chunks {
		n += len(c.Text)
	}
	buf := make([]byte, 0, n)
	for _, c := range o.Chunks {
		buf = append(buf, c.Text...)
	}
	return string(buf)
}

// Collect drains a chunk stream.
func Collect(ch <-chan Chunk) []Chunk {
	var chunks []Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}
