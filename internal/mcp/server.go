// Package mcp exposes the memory service as MCP tools over stdio.
package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
)

const serverName = "recall"

// Tool is implemented by every tool in this package.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Tools returns every tool bound to svc, in registration order.
func Tools(svc *memory.Service) []Tool {
	return []Tool{
		NewStoreVectorTool(svc),
		NewSearchVectorsTool(svc),
		NewUpdateVectorTool(svc),
		NewDeleteVectorTool(svc),
		NewContextTool(svc),
		NewStoreMessageTool(svc),
		NewRecentMessagesTool(svc),
		NewDeleteMessageTool(svc),
		NewTrackFileTool(svc),
		NewMilestoneTool(svc),
		NewDecisionTool(svc),
		NewRequirementTool(svc),
		NewEpisodeTool(svc),
		NewIndexFileTool(svc),
		NewMaintenanceTool(svc),
	}
}

// NewServer creates the MCP server with all tools registered.
func NewServer(svc *memory.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range Tools(svc) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Serve runs the stdio transport until ctx is cancelled or in is closed.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

const instructions = `recall keeps project memory across sessions.
Store conversation messages, decisions, milestones and requirements as they happen,
track the files you open or edit, and call getComprehensiveContext with a query
to get the most relevant recent memory back. Fingerprints are computed in the
background, so content stored a moment ago may not yet rank in semantic results.`
