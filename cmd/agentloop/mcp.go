package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sammcj/agentloop/mcpserver"
	"github.com/spf13/cobra"
)

var mcpWorkspace string

func getMCPCommand() *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose read_file, write_file and run_bash as MCP tools over stdio",
		RunE:  runMCP,
	}
	mcpCmd.Flags().StringVarP(&mcpWorkspace, "workspace", "w", "", "Workspace root used for relative paths and shell commands")
	return mcpCmd
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	workspace := mcpWorkspace
	if workspace != "" {
		if workspace, err = filepath.Abs(workspace); err != nil {
			return fmt.Errorf("invalid workspace: %w", err)
		}
	}

	s := mcpserver.NewMCPServer(a.exec, workspace, version, a.logger)
	defer s.Close()
	return s.Serve()
}
