// tools/executor.go
package tools

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults for Options fields left at their zero value.
const (
	DefaultReadLimit      = 10000
	DefaultOutputLimit    = 5000
	DefaultCommandTimeout = 30 * time.Second
	DefaultShell          = "/bin/sh"
)

// Options configures an Executor.
type Options struct {
	// ReadLimit is the number of characters read_file returns before truncating.
	ReadLimit int
	// OutputLimit is the number of characters run_bash returns before truncating.
	OutputLimit    int
	CommandTimeout time.Duration
	Shell          string

	Paths     *PathGuard
	Commands  CommandPolicy
	Confirmer Confirmer
	Logger    logrus.FieldLogger
}

// Executor dispatches tool invocations to the closed capability set.
// It is safe for concurrent use.
type Executor struct {
	opts      Options
	validator *Validator
	paths     *PathGuard
	commands  CommandPolicy
	confirmer Confirmer
	logger    logrus.FieldLogger
}

// NewExecutor creates an executor, filling unset options with defaults.
func NewExecutor(opts Options) *Executor {
	if opts.ReadLimit == 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.OutputLimit == 0 {
		opts.OutputLimit = DefaultOutputLimit
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Shell == "" {
		opts.Shell = DefaultShell
	}
	if opts.Commands == nil {
		opts.Commands = AllowAll{}
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		opts.Logger = l
	}

	return &Executor{
		opts:      opts,
		validator: NewValidator(Specs()),
		paths:     opts.Paths,
		commands:  opts.Commands,
		confirmer: opts.Confirmer,
		logger:    opts.Logger,
	}
}

// Execute runs one invocation. Every failure, including unknown tools and
// missing arguments, is reported through the Result.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]string) Result {
	start := time.Now()
	res := e.dispatch(ctx, name, args)

	fields := logrus.Fields{
		"tool":        name,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if res.IsError() {
		fields["error_kind"] = string(res.Kind)
	}
	e.logger.WithFields(fields).Debug("tool executed")

	return res
}

func (e *Executor) dispatch(ctx context.Context, name string, args map[string]string) Result {
	if err := e.validator.Validate(name, args); err != nil {
		var missing *MissingArgumentError
		switch {
		case errors.Is(err, ErrUnknownTool):
			return Failure(name, KindUnknownTool, name)
		case errors.As(err, &missing):
			return Failure(name, KindMissingArgument, missing.Arg)
		default:
			return Failure(name, KindCommandFailed, err.Error())
		}
	}

	switch name {
	case ReadFile:
		return e.readFile(ctx, args["path"])
	case WriteFile:
		return e.writeFile(ctx, args["path"], args["content"])
	case RunBash:
		return e.runBash(ctx, args["command"])
	default:
		return Failure(name, KindUnknownTool, name)
	}
}

type workspaceKey struct{}

// WithWorkspace returns a context whose tool calls resolve relative paths
// against root and run shell commands inside it.
func WithWorkspace(ctx context.Context, root string) context.Context {
	if root == "" {
		return ctx
	}
	return context.WithValue(ctx, workspaceKey{}, root)
}

// WorkspaceFromContext returns the workspace root set by WithWorkspace.
func WorkspaceFromContext(ctx context.Context) string {
	root, _ := ctx.Value(workspaceKey{}).(string)
	return root
}
