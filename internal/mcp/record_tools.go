package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

var importanceEnum = mcp.Enum(
	string(models.ImportanceLow),
	string(models.ImportanceMedium),
	string(models.ImportanceHigh),
	string(models.ImportanceCritical),
)

type StoreMessageTool struct {
	svc *memory.Service
}

func NewStoreMessageTool(svc *memory.Service) *StoreMessageTool {
	return &StoreMessageTool{svc: svc}
}

func (t *StoreMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("storeMessage",
		mcp.WithDescription("Store a conversation message. Code blocks in the message are indexed as snippets. <private>...</private> spans are never stored."),
		mcp.WithString("role", mcp.Required(), mcp.Enum(string(models.RoleUser), string(models.RoleAssistant))),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message text")),
		mcp.WithString("importance", importanceEnum, mcp.Description("Defaults to medium")),
		mcp.WithObject("metadata", mcp.Description("Optional free-form metadata")),
	)
}

func (t *StoreMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	md, err := metadataArg(req, "metadata")
	if err != nil {
		return errorResult(err), nil
	}
	msg, err := t.svc.StoreMessage(ctx, &models.StoreMessageRequest{
		Role:       models.Role(req.GetString("role", "")),
		Content:    req.GetString("content", ""),
		Importance: models.Importance(req.GetString("importance", "")),
		Metadata:   md,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(msg)
}

type RecentMessagesTool struct {
	svc *memory.Service
}

func NewRecentMessagesTool(svc *memory.Service) *RecentMessagesTool {
	return &RecentMessagesTool{svc: svc}
}

func (t *RecentMessagesTool) Definition() mcp.Tool {
	return mcp.NewTool("getRecentMessages",
		mcp.WithDescription("List the most recent conversation messages, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum messages (default 10, at most 100)")),
	)
}

func (t *RecentMessagesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msgs, err := t.svc.RecentMessages(ctx, req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(msgs)
}

type DeleteMessageTool struct {
	svc *memory.Service
}

func NewDeleteMessageTool(svc *memory.Service) *DeleteMessageTool {
	return &DeleteMessageTool{svc: svc}
}

func (t *DeleteMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("deleteMessage",
		mcp.WithDescription("Delete a stored message. Its fingerprints are removed by the next maintenance run."),
		mcp.WithNumber("messageId", mcp.Required()),
	)
}

func (t *DeleteMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := idArg(req, "messageId")
	if err != nil {
		return errorResult(err), nil
	}
	if err := t.svc.DeleteMessage(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"id": id, "deleted": true})
}

type TrackFileTool struct {
	svc *memory.Service
}

func NewTrackFileTool(svc *memory.Service) *TrackFileTool {
	return &TrackFileTool{svc: svc}
}

func (t *TrackFileTool) Definition() mcp.Tool {
	return mcp.NewTool("trackActiveFile",
		mcp.WithDescription("Record that a file was opened, edited, created or closed. Open files are indexed and re-indexed when they change."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Path of the file")),
		mcp.WithString("action", mcp.Enum(
			string(models.FileActionOpen),
			string(models.FileActionEdit),
			string(models.FileActionCreate),
			string(models.FileActionClose),
		), mcp.Description("Defaults to open")),
		mcp.WithString("importance", importanceEnum),
		mcp.WithObject("metadata"),
	)
}

func (t *TrackFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	md, err := metadataArg(req, "metadata")
	if err != nil {
		return errorResult(err), nil
	}
	f, err := t.svc.TrackActiveFile(ctx, &models.TrackFileRequest{
		Filename:   req.GetString("filename", ""),
		Action:     models.FileAction(req.GetString("action", "")),
		Importance: models.Importance(req.GetString("importance", "")),
		Metadata:   md,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(f)
}

type MilestoneTool struct {
	svc *memory.Service
}

func NewMilestoneTool(svc *memory.Service) *MilestoneTool {
	return &MilestoneTool{svc: svc}
}

func (t *MilestoneTool) Definition() mcp.Tool {
	return mcp.NewTool("storeMilestone",
		mcp.WithDescription("Record a project milestone."),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("description"),
		mcp.WithString("importance", importanceEnum, mcp.Description("Defaults to medium")),
		mcp.WithObject("metadata"),
	)
}

func (t *MilestoneTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	md, err := metadataArg(req, "metadata")
	if err != nil {
		return errorResult(err), nil
	}
	m, err := t.svc.AddMilestone(ctx, &models.MilestoneRequest{
		Title:       req.GetString("title", ""),
		Description: req.GetString("description", ""),
		Importance:  models.Importance(req.GetString("importance", "")),
		Metadata:    md,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(m)
}

type DecisionTool struct {
	svc *memory.Service
}

func NewDecisionTool(svc *memory.Service) *DecisionTool {
	return &DecisionTool{svc: svc}
}

func (t *DecisionTool) Definition() mcp.Tool {
	return mcp.NewTool("storeDecision",
		mcp.WithDescription("Record a design or project decision and the reasoning behind it."),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("content", mcp.Required(), mcp.Description("What was decided")),
		mcp.WithString("reasoning"),
		mcp.WithString("importance", importanceEnum, mcp.Description("Defaults to medium")),
		mcp.WithObject("metadata"),
	)
}

func (t *DecisionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	md, err := metadataArg(req, "metadata")
	if err != nil {
		return errorResult(err), nil
	}
	d, err := t.svc.AddDecision(ctx, &models.DecisionRequest{
		Title:      req.GetString("title", ""),
		Content:    req.GetString("content", ""),
		Reasoning:  req.GetString("reasoning", ""),
		Importance: models.Importance(req.GetString("importance", "")),
		Metadata:   md,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(d)
}

type RequirementTool struct {
	svc *memory.Service
}

func NewRequirementTool(svc *memory.Service) *RequirementTool {
	return &RequirementTool{svc: svc}
}

func (t *RequirementTool) Definition() mcp.Tool {
	return mcp.NewTool("storeRequirement",
		mcp.WithDescription("Record a project requirement."),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("content", mcp.Required()),
		mcp.WithString("importance", importanceEnum, mcp.Description("Defaults to medium")),
		mcp.WithObject("metadata"),
	)
}

func (t *RequirementTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	md, err := metadataArg(req, "metadata")
	if err != nil {
		return errorResult(err), nil
	}
	r, err := t.svc.AddRequirement(ctx, &models.RequirementRequest{
		Title:      req.GetString("title", ""),
		Content:    req.GetString("content", ""),
		Importance: models.Importance(req.GetString("importance", "")),
		Metadata:   md,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(r)
}

type EpisodeTool struct {
	svc *memory.Service
}

func NewEpisodeTool(svc *memory.Service) *EpisodeTool {
	return &EpisodeTool{svc: svc}
}

func (t *EpisodeTool) Definition() mcp.Tool {
	return mcp.NewTool("recordEpisode",
		mcp.WithDescription("Append an event to the chronological episode log."),
		mcp.WithString("actor", mcp.Required(), mcp.Description("Who acted, e.g. user or assistant")),
		mcp.WithString("action", mcp.Required(), mcp.Description("What kind of event happened")),
		mcp.WithString("content", mcp.Required()),
		mcp.WithString("context"),
		mcp.WithString("importance", importanceEnum, mcp.Description("Defaults to low")),
		mcp.WithObject("metadata"),
	)
}

func (t *EpisodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	md, err := metadataArg(req, "metadata")
	if err != nil {
		return errorResult(err), nil
	}
	e, err := t.svc.RecordEpisode(ctx, &models.EpisodeRequest{
		Actor:      req.GetString("actor", ""),
		Action:     req.GetString("action", ""),
		Content:    req.GetString("content", ""),
		Context:    req.GetString("context", ""),
		Importance: models.Importance(req.GetString("importance", "")),
		Metadata:   md,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(e)
}
