// Package agent runs the reason-act loop: it asks the model for a reply,
// executes the tool call the reply contains, feeds the result back, and stops
// at the first reply without a tool call or when the iteration limit is hit.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sammcj/agentloop/grammar"
	"github.com/sammcj/agentloop/tools"
	"github.com/sammcj/agentloop/transcript"
	"github.com/sammcj/agentloop/types"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxIterations bounds the number of model calls in one run.
const DefaultMaxIterations = 10

const tracerName = "github.com/sammcj/agentloop/agent"

// Model produces the next assistant reply for a conversation.
type Model interface {
	Complete(ctx context.Context, messages []types.Message, opts types.CompletionOptions) (string, error)
}

// Executor runs one tool invocation. *tools.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]string) tools.Result
}

// ToolRecord describes one tool execution inside a run.
type ToolRecord struct {
	RunID     string
	Iteration int
	Tool      string
	Args      map[string]string
	Result    tools.Result
	Duration  time.Duration
	StartedAt time.Time
}

// Recorder receives every tool execution. Errors are logged and never end
// the run.
type Recorder interface {
	RecordTool(ctx context.Context, rec ToolRecord) error
}

// Config controls the loop.
type Config struct {
	SystemPrompt  string
	MaxIterations int
	// Model overrides the model's default model name when set.
	Model     string
	MaxTokens int
	// Budget trims old turns before each model call when enabled.
	Budget transcript.Budget
}

// Request is one user turn.
type Request struct {
	Message       string
	History       []types.Message
	WorkspacePath string
}

// Agent runs conversations against a model and a tool executor. It keeps no
// per-conversation state, so one Agent can serve concurrent runs.
type Agent struct {
	cfg      Config
	model    Model
	exec     Executor
	logger   logrus.FieldLogger
	recorder Recorder
	tracer   trace.Tracer
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithRecorder sets the tool execution recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(a *Agent) { a.tracer = t }
}

// New creates an agent.
func New(cfg Config, model Model, exec Executor, opts ...Option) (*Agent, error) {
	if model == nil {
		return nil, &types.ConfigError{Field: "agent", Message: "model is required"}
	}
	if exec == nil {
		return nil, &types.ConfigError{Field: "agent", Message: "tool executor is required"}
	}
	if cfg.MaxIterations < 0 {
		return nil, &types.ConfigError{Field: "agent.max_iterations", Message: fmt.Sprintf("must not be negative, got %d", cfg.MaxIterations)}
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt(tools.Specs())
	}

	a := &Agent{
		cfg:   cfg,
		model: model,
		exec:  exec,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		a.logger = l
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(tracerName)
	}
	return a, nil
}

// Run starts a run and streams its output. The channel is closed when the run
// ends. Callers must drain the channel or cancel ctx; a cancelled run stops
// at the next step and closes the channel.
func (a *Agent) Run(ctx context.Context, req Request) <-chan Chunk {
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		a.run(ctx, req, func(c Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return ch
}

// RunCollect runs to completion and returns every chunk with the final state.
func (a *Agent) RunCollect(ctx context.Context, req Request) Outcome {
	var chunks []Chunk
	out := a.run(ctx, req, func(c Chunk) bool {
		chunks = append(chunks, c)
		return true
	})
	out.Chunks = chunks
	return out
}

func (a *Agent) run(ctx context.Context, req Request, emit func(Chunk) bool) Outcome {
	runID := uuid.NewString()
	out := Outcome{RunID: runID}
	log := a.logger.WithField("run_id", runID)

	ctx, span := a.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.run_id", runID),
		attribute.Int("agent.max_iterations", a.cfg.MaxIterations),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("agent.state", string(out.State)),
			attribute.Int("agent.iterations", out.Iterations),
		)
		span.End()
	}()

	ctx = tools.WithWorkspace(ctx, req.WorkspacePath)

	tr := transcript.New(a.cfg.SystemPrompt)
	tr.Seed(req.History)
	tr.AddUser(req.Message, req.WorkspacePath)

	log.WithField("history", len(req.History)).Info("agent run started")

	for iteration := 1; iteration <= a.cfg.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return a.finish(log, out, StateCancelled)
		}
		out.Iterations = iteration
		ilog := log.WithField("iteration", iteration)

		reply, err := a.complete(ctx, tr, iteration, ilog)
		if err != nil {
			if ctx.Err() != nil {
				return a.finish(log, out, StateCancelled)
			}
			ilog.WithError(err).Error("model call failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, "model call failed")
			emit(Chunk{Kind: KindError, Text: modelErrorText(err)})
			return a.finish(log, out, StateModelError)
		}

		inv, ok := grammar.Parse(reply)
		if !ok {
			text := reply
			if strings.TrimSpace(reply) == "" {
				text = emptyReplyText
			}
			emit(Chunk{Kind: KindAnswer, Text: text})
			return a.finish(log, out, StateFinalAnswer)
		}

		if prelude := inv.Prelude(reply); prelude != "" {
			if !emit(Chunk{Kind: KindProgress, Text: prelude + "\n"}) {
				return a.finish(log, out, StateCancelled)
			}
		}
		if !emit(Chunk{Kind: KindTool, Text: toolNotice(inv.Name)}) {
			return a.finish(log, out, StateCancelled)
		}

		res := a.execute(ctx, runID, iteration, inv, ilog)

		tr.AddAssistant(reply)
		tr.AddToolResult(inv.Name, res.Text())
	}

	if ctx.Err() != nil {
		return a.finish(log, out, StateCancelled)
	}
	emit(Chunk{Kind: KindWarning, Text: maxIterationsText})
	return a.finish(log, out, StateMaxIterations)
}

func (a *Agent) finish(log logrus.FieldLogger, out Outcome, state State) Outcome {
	out.State = state
	log.WithFields(logrus.Fields{
		"state":      state,
		"iterations": out.Iterations,
	}).Info("agent run finished")
	return out
}

func (a *Agent) complete(ctx context.Context, tr *transcript.Transcript, iteration int, log logrus.FieldLogger) (string, error) {
	msgs := tr.Messages()
	if a.cfg.Budget.Enabled() {
		var dropped int
		msgs, dropped = a.cfg.Budget.Fit(msgs)
		if dropped > 0 {
			log.WithField("dropped_turns", dropped).Warn("transcript trimmed to fit the context budget")
		}
	}

	ctx, span := a.tracer.Start(ctx, "agent.model_call", trace.WithAttributes(
		attribute.Int("agent.iteration", iteration),
		attribute.Int("llm.messages", len(msgs)),
	))
	defer span.End()

	start := time.Now()
	reply, err := a.model.Complete(ctx, msgs, types.CompletionOptions{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	log.WithFields(logrus.Fields{
		"reply_chars": len(reply),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("model replied")
	return reply, nil
}

func (a *Agent) execute(ctx context.Context, runID string, iteration int, inv grammar.Invocation, log logrus.FieldLogger) tools.Result {
	ctx, span := a.tracer.Start(ctx, "agent.tool", trace.WithAttributes(
		attribute.String("tool.name", inv.Name),
		attribute.Int("agent.iteration", iteration),
	))
	defer span.End()

	started := time.Now()
	res := a.exec.Execute(ctx, inv.Name, inv.Args)
	elapsed := time.Since(started)

	tlog := log.WithFields(logrus.Fields{
		"tool":        inv.Name,
		"duration_ms": elapsed.Milliseconds(),
	})
	if res.IsError() {
		span.SetStatus(codes.Error, string(res.Kind))
		span.SetAttributes(attribute.String("tool.error_kind", string(res.Kind)))
		tlog.WithField("error_kind", res.Kind).Warn("tool failed")
	} else {
		tlog.Info("tool succeeded")
	}

	if a.recorder != nil {
		rec := ToolRecord{
			RunID:     runID,
			Iteration: iteration,
			Tool:      inv.Name,
			Args:      inv.Args,
			Result:    res,
			Duration:  elapsed,
			StartedAt: started,
		}
		// Recording must outlive a cancelled run.
		if err := a.recorder.RecordTool(context.WithoutCancel(ctx), rec); err != nil {
			tlog.WithError(err).Error("failed to record tool execution")
		}
	}
	return res
}
