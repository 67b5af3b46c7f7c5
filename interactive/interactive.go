// interactive/interactive.go
package interactive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sammcj/agentloop/agent"
	"github.com/sammcj/agentloop/types"
	"github.com/sirupsen/logrus"
)

// Runner starts agent runs. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, req agent.Request) <-chan agent.Chunk
}

// Options describes the session shown in the banner.
type Options struct {
	Model     string
	Endpoint  string
	Workspace string
}

// Interactive is a terminal chat session. It keeps the conversation history
// across prompts and passes it to every run.
type Interactive struct {
	opts    Options
	in      *bufio.Reader
	inMu    sync.Mutex
	out     io.Writer
	logger  logrus.FieldLogger
	history []types.Message

	toolColor  *color.Color
	warnColor  *color.Color
	errorColor *color.Color
	infoColor  *color.Color
}

func New(opts Options, in io.Reader, out io.Writer, logger logrus.FieldLogger) *Interactive {
	return &Interactive{
		opts:       opts,
		in:         bufio.NewReader(in),
		out:        out,
		logger:     logger,
		toolColor:  color.New(color.FgCyan),
		warnColor:  color.New(color.FgYellow),
		errorColor: color.New(color.FgRed),
		infoColor:  color.New(color.FgGreen, color.Bold),
	}
}

// Start reads prompts until quit, exit, EOF or cancellation.
func (i *Interactive) Start(ctx context.Context, runner Runner) error {
	i.infoColor.Fprintln(i.out, "\n=== Agent Chat Ready ===")
	fmt.Fprintln(i.out, "Type 'quit' or press Ctrl+C to exit, 'clear' to forget the conversation")
	fmt.Fprintln(i.out, "Connected to model:", i.opts.Model)
	fmt.Fprintf(i.out, "Using endpoint: %s\n", i.opts.Endpoint)
	if i.opts.Workspace != "" {
		fmt.Fprintln(i.out, "Workspace:", i.opts.Workspace)
	}
	fmt.Fprintln(i.out, "========================")

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(i.out, "\n> ")
		input, err := i.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(i.out)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(i.out, "Goodbye!")
			return nil
		case "clear":
			i.history = nil
			fmt.Fprintln(i.out, "Conversation cleared.")
			continue
		}

		reply := i.Ask(ctx, runner, input)
		i.history = append(i.history,
			types.Message{Role: types.RoleUser, Content: input},
			types.Message{Role: types.RoleAssistant, Content: reply},
		)
	}
}

// Ask runs one prompt, printing chunks as they arrive, and returns the full
// streamed text.
func (i *Interactive) Ask(ctx context.Context, runner Runner, message string) string {
	var full strings.Builder
	fmt.Fprintln(i.out)
	for chunk := range runner.Run(ctx, agent.Request{
		Message:       message,
		History:       i.history,
		WorkspacePath: i.opts.Workspace,
	}) {
		full.WriteString(chunk.Text)
		i.print(chunk)
	}
	fmt.Fprintln(i.out)
	i.logger.WithField("chars", full.Len()).Debug("response printed")
	return full.String()
}

// History returns the turns kept so far.
func (i *Interactive) History() []types.Message {
	return append([]types.Message(nil), i.history...)
}

func (i *Interactive) print(chunk agent.Chunk) {
	switch chunk.Kind {
	case agent.KindTool:
		i.toolColor.Fprint(i.out, chunk.Text)
	case agent.KindWarning:
		i.warnColor.Fprint(i.out, chunk.Text)
	case agent.KindError:
		i.errorColor.Fprint(i.out, chunk.Text)
	default:
		fmt.Fprint(i.out, chunk.Text)
	}
}

// Confirm asks the user whether a command flagged by the policy may run.
// It implements tools.Confirmer.
func (i *Interactive) Confirm(ctx context.Context, command string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	i.warnColor.Fprintf(i.out, "\nRun command %q? [y/N] ", command)
	answer, err := i.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func (i *Interactive) readLine() (string, error) {
	i.inMu.Lock()
	defer i.inMu.Unlock()
	line, err := i.in.ReadString('\n')
	if err != nil && line != "" && errors.Is(err, io.EOF) {
		return line, nil
	}
	return line, err
}
