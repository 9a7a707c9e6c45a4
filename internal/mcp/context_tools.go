package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
)

// ContextTool assembles the comprehensive context snapshot.
type ContextTool struct {
	svc *memory.Service
}

func NewContextTool(svc *memory.Service) *ContextTool {
	return &ContextTool{svc: svc}
}

func (t *ContextTool) Definition() mcp.Tool {
	return mcp.NewTool("getComprehensiveContext",
		mcp.WithDescription("Get recent messages, active files, milestones, decisions, requirements and episodes. "+
			"With a query, items are ranked by relevance and similar messages, files and code snippets are added."),
		mcp.WithString("query", mcp.Description("Optional text to rank memory against")),
	)
}

func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.svc.GetComprehensiveContext(ctx, req.GetString("query", "")))
}

type IndexFileTool struct {
	svc *memory.Service
}

func NewIndexFileTool(svc *memory.Service) *IndexFileTool {
	return &IndexFileTool{svc: svc}
}

func (t *IndexFileTool) Definition() mcp.Tool {
	return mcp.NewTool("indexFile",
		mcp.WithDescription("Queue a file for indexing. Returns immediately with the background task ID."),
		mcp.WithString("path", mcp.Required()),
	)
}

func (t *IndexFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return errorResult(badArgs("%v", err)), nil
	}
	resp, err := t.svc.IndexFile(ctx, path)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(resp)
}

type MaintenanceTool struct {
	svc *memory.Service
}

func NewMaintenanceTool(svc *memory.Service) *MaintenanceTool {
	return &MaintenanceTool{svc: svc}
}

func (t *MaintenanceTool) Definition() mcp.Tool {
	return mcp.NewTool("runMaintenance",
		mcp.WithDescription("Remove orphaned fingerprints, collapse duplicates and resync the vector index. Waits for queued work first."),
	)
}

func (t *MaintenanceTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := t.svc.RunMaintenance(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(report)
}
