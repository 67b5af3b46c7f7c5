package main

import (
	"context"
	"time"

	"github.com/sammcj/agentloop/server"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

func getServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP for editor integrations",
		Long: `Starts the HTTP server with the /chat, /explain-file, /suggest and /health endpoints.

Example:
  agentloop serve --port 8000`,
		RunE: runServe,
	}
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (defaults to server.host from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to server.port from config)")
	return serveCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}

	opts := server.Options{
		Host:          a.cfg.Server.Host,
		Port:          a.cfg.Server.Port,
		MaxConcurrent: a.cfg.Server.MaxConcurrent,
		InlineModel:   a.cfg.LLM.InlineModel,
	}
	if serveHost != "" {
		opts.Host = serveHost
	}
	if servePort != 0 {
		opts.Port = servePort
	}

	srv := server.New(opts, a.agent, a.client, a.logger)

	sm := server.NewShutdownManager(srv.HTTPServer(), 30*time.Second, a.logger)
	sm.Register("run tracker", func(context.Context) error { return srv.Tracker().Close() })
	sm.Register("audit store", a.closeStore)
	sm.Register("telemetry", a.closeTracing)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	return sm.HandleGracefulShutdown(errCh)
}
