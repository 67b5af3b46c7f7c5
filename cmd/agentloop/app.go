package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sammcj/agentloop/agent"
	"github.com/sammcj/agentloop/audit"
	"github.com/sammcj/agentloop/config"
	"github.com/sammcj/agentloop/llm"
	"github.com/sammcj/agentloop/telemetry"
	"github.com/sammcj/agentloop/tools"
	"github.com/sirupsen/logrus"
)

// app holds the components every command shares.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	client  *llm.Client
	exec    *tools.Executor
	agent   *agent.Agent
	store   *audit.Store
	tracing telemetry.ShutdownFunc
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, created, err := config.LoadOrCreate(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	if created {
		logger.Info("Created default configuration file")
	}
	return cfg, logger, nil
}

// newApp wires the model client, executor, audit store, tracing and agent.
// The confirmer may be nil.
func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, confirmer tools.Confirmer) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var err error
	a.tracing, err = telemetry.Setup(ctx, cfg.TracingConfig(version))
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	execOpts, err := cfg.ExecutorOptions(logger, confirmer)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.exec = tools.NewExecutor(execOpts)

	a.client = llm.New(cfg.LLMClientConfig(), logger)

	agentOpts := []agent.Option{agent.WithLogger(logger)}
	if cfg.Audit.Enable {
		a.store, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		agentOpts = append(agentOpts, agent.WithRecorder(a.store))
		logger.WithField("path", cfg.Audit.Path).Info("Recording tool executions")
	}

	a.agent, err = agent.New(cfg.LoopConfig(logger), a.client, a.exec, agentOpts...)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) closeStore(context.Context) error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *app) closeTracing(ctx context.Context) error {
	if a.tracing == nil {
		return nil
	}
	return a.tracing(ctx)
}

func (a *app) close(ctx context.Context) error {
	return errors.Join(a.closeStore(ctx), a.closeTracing(ctx))
}
