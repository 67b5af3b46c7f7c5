package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sammcj/agentloop/tools"
	"github.com/sammcj/agentloop/types"
	"github.com/sirupsen/logrus"
)

// ToolRunner executes one tool invocation. *tools.Executor implements it.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]string) tools.Result
}

// MCPServer exposes the agent's tools to MCP clients over stdio.
type MCPServer struct {
	server    *server.MCPServer
	exec      ToolRunner
	workspace string
	ctx       context.Context
	cancel    context.CancelFunc
	logger    logrus.FieldLogger
}

// NewMCPServer registers every capability from tools.Specs. Relative paths
// and shell commands resolve against workspace when it is set.
func NewMCPServer(exec ToolRunner, workspace, version string, logger logrus.FieldLogger) *MCPServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MCPServer{
		server: server.NewMCPServer(
			"agentloop-tools",
			version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
		),
		exec:      exec,
		workspace: workspace,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}

	for _, spec := range tools.Specs() {
		s.server.AddTool(spec, s.toolHandler(spec.Name))
	}
	s.server.AddNotificationHandler(s.handleNotification)

	logger.WithField("tools", len(tools.Specs())).Info("MCP server created")
	return s
}

func (s *MCPServer) toolHandler(name string) func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		args := make(map[string]string, len(arguments))
		for k, v := range arguments {
			str, ok := v.(string)
			if !ok {
				s.logger.WithFields(logrus.Fields{"tool": name, "argument": k}).Warn("Invalid argument type")
				return nil, &types.ToolError{Tool: name, Message: fmt.Sprintf("argument %s must be a string", k)}
			}
			args[k] = str
		}

		ctx := tools.WithWorkspace(s.ctx, s.workspace)
		res := s.exec.Execute(ctx, name, args)
		if res.IsError() {
			s.logger.WithFields(logrus.Fields{"tool": name, "error_kind": res.Kind}).Warn("Tool failed")
			return nil, &types.ToolError{Tool: name, Message: res.Text()}
		}

		return &mcp.CallToolResult{
			Content: []interface{}{
				mcp.TextContent{
					Type: "text",
					Text: res.Text(),
				},
			},
		}, nil
	}
}

func (s *MCPServer) handleNotification(notification mcp.JSONRPCNotification) {
	s.logger.WithField("method", notification.Method).Debug("Received notification")
}

// Serve blocks serving stdio until the client disconnects.
func (s *MCPServer) Serve() error {
	s.logger.Info("Starting MCP server...")
	if err := server.ServeStdio(s.server); err != nil {
		s.logger.WithError(err).Error("Server error")
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// Close cancels tool executions that are still running.
func (s *MCPServer) Close() error {
	s.cancel()
	return nil
}
