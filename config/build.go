package config

import (
	"github.com/sammcj/agentloop/agent"
	"github.com/sammcj/agentloop/llm"
	"github.com/sammcj/agentloop/telemetry"
	"github.com/sammcj/agentloop/tools"
	"github.com/sammcj/agentloop/transcript"
	"github.com/sammcj/agentloop/types"
	"github.com/sirupsen/logrus"
)

const tiktokenEncoding = "cl100k_base"

// LLMClientConfig maps the llm section onto the client configuration.
func (c *Config) LLMClientConfig() llm.Config {
	return llm.Config{
		Endpoint:          c.LLM.Endpoint,
		APIKey:            c.LLM.APIKey,
		Model:             c.LLM.Model,
		MaxTokens:         c.LLM.MaxTokens,
		Timeout:           c.LLM.Timeout,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
	}
}

// ExecutorOptions maps the tools section onto executor options. The
// confirmer may be nil.
func (c *Config) ExecutorOptions(logger logrus.FieldLogger, confirmer tools.Confirmer) (tools.Options, error) {
	guard, err := tools.NewPathGuard(c.Tools.AllowedRoots...)
	if err != nil {
		return tools.Options{}, &types.ConfigError{Field: "tools.allowed_roots", Message: "invalid root", Err: err}
	}

	var policy tools.CommandPolicy = tools.AllowAll{}
	if len(c.Tools.AllowedCommands) > 0 || len(c.Tools.DeniedCommands) > 0 {
		policy = &tools.ListPolicy{
			Allowed:         c.Tools.AllowedCommands,
			Denied:          c.Tools.DeniedCommands,
			ConfirmUnlisted: c.Tools.ConfirmUnlisted,
		}
	}

	return tools.Options{
		ReadLimit:      c.Tools.ReadLimit,
		OutputLimit:    c.Tools.OutputLimit,
		CommandTimeout: c.Tools.CommandTimeout,
		Shell:          c.Tools.Shell,
		Paths:          guard,
		Commands:       policy,
		Confirmer:      confirmer,
		Logger:         logger,
	}, nil
}

// LoopConfig maps the agent section onto the loop configuration. A
// tiktoken counter that cannot be loaded falls back to character counting.
func (c *Config) LoopConfig(logger logrus.FieldLogger) agent.Config {
	cfg := agent.Config{
		SystemPrompt:  c.Agent.SystemPrompt,
		MaxIterations: c.Agent.MaxIterations,
		MaxTokens:     c.LLM.MaxTokens,
	}
	if c.Agent.MaxContextTokens <= 0 {
		return cfg
	}

	var counter transcript.TokenCounter = transcript.CharCounter{}
	if c.Agent.TokenCounter == "tiktoken" {
		tc, err := transcript.NewTiktokenCounter(tiktokenEncoding)
		if err != nil {
			logger.WithError(err).Warn("falling back to character token estimates")
		} else {
			counter = tc
		}
	}
	cfg.Budget = transcript.Budget{MaxTokens: c.Agent.MaxContextTokens, Counter: counter}
	return cfg
}

// TracingConfig maps the telemetry section.
func (c *Config) TracingConfig(version string) telemetry.Config {
	return telemetry.Config{
		Enable:      c.Telemetry.Enable,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		ServiceName: c.Telemetry.ServiceName,
		Version:     version,
	}
}
