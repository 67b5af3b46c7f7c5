package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sammcj/agentloop/interactive"
	"github.com/spf13/cobra"
)

var (
	chatMessage   string
	chatWorkspace string
)

func getChatCommand() *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in the terminal",
		Long: `Starts an interactive session, or answers a single message with -m.

Example:
  agentloop chat -w .
  agentloop chat -m "How many Go files are in this project?" -w ~/src/project`,
		RunE: runChat,
	}
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send one message, print the streamed reply and exit")
	chatCmd.Flags().StringVarP(&chatWorkspace, "workspace", "w", "", "Workspace root used for relative paths and shell commands")
	return chatCmd
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		// A second interrupt exits even while the prompt waits for input.
		stop()
	}()

	workspace := chatWorkspace
	if workspace != "" {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return fmt.Errorf("invalid workspace: %w", err)
		}
		workspace = abs
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	// The session confirms commands the policy flags, so it exists before the executor.
	session := interactive.New(interactive.Options{
		Model:     cfg.LLM.Model,
		Endpoint:  cfg.LLM.Endpoint,
		Workspace: workspace,
	}, cmd.InOrStdin(), cmd.OutOrStdout(), logger)

	a, err := newApp(ctx, cfg, logger, session)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if chatMessage != "" {
		session.Ask(ctx, a.agent, chatMessage)
		return nil
	}
	return session.Start(ctx, a.agent)
}
