package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

var numberItems = mcp.Items(map[string]any{"type": "number"})

// StoreVectorTool stores a caller-computed fingerprint.
type StoreVectorTool struct {
	svc *memory.Service
}

func NewStoreVectorTool(svc *memory.Service) *StoreVectorTool {
	return &StoreVectorTool{svc: svc}
}

func (t *StoreVectorTool) Definition() mcp.Tool {
	return mcp.NewTool("storeVector",
		mcp.WithDescription("Store a vector for a piece of content. Duplicates are allowed and collapsed by maintenance, keeping the newest."),
		mcp.WithString("contentId", mcp.Required(), mcp.Description("ID of the content the vector belongs to")),
		mcp.WithString("contentType", mcp.Required(), mcp.Description("Content type tag, e.g. user_message or code_snippet")),
		mcp.WithArray("vector", mcp.Required(), numberItems, mcp.Description("Vector components")),
		mcp.WithObject("metadata", mcp.Description("Optional free-form metadata")),
	)
}

func (t *StoreVectorTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contentID, err := req.RequireString("contentId")
	if err != nil {
		return errorResult(badArgs("%v", err)), nil
	}
	contentType, err := req.RequireString("contentType")
	if err != nil {
		return errorResult(badArgs("%v", err)), nil
	}
	vec, err := vectorArg(req, "vector")
	if err != nil {
		return errorResult(err), nil
	}
	md, err := metadataArg(req, "metadata")
	if err != nil {
		return errorResult(err), nil
	}

	resp, err := t.svc.StoreVector(ctx, &models.StoreVectorRequest{
		ContentID:   contentID,
		ContentType: contentType,
		Vector:      vec,
		Metadata:    md,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(resp)
}

// SearchVectorsTool ranks stored fingerprints by cosine similarity.
type SearchVectorsTool struct {
	svc *memory.Service
}

func NewSearchVectorsTool(svc *memory.Service) *SearchVectorsTool {
	return &SearchVectorsTool{svc: svc}
}

func (t *SearchVectorsTool) Definition() mcp.Tool {
	return mcp.NewTool("searchVectors",
		mcp.WithDescription("Find stored vectors most similar to the given one, best first."),
		mcp.WithArray("vector", mcp.Required(), numberItems, mcp.Description("Query vector")),
		mcp.WithString("contentType", mcp.Description("Only search this content type")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
		mcp.WithNumber("threshold", mcp.Description("Minimum cosine similarity (default 0.7)")),
	)
}

func (t *SearchVectorsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vec, err := vectorArg(req, "vector")
	if err != nil {
		return errorResult(err), nil
	}
	threshold, err := optionalFloat(req, "threshold")
	if err != nil {
		return errorResult(err), nil
	}

	matches, err := t.svc.SearchVectors(ctx, &models.SearchVectorsRequest{
		Vector:      vec,
		ContentType: req.GetString("contentType", ""),
		Limit:       req.GetInt("limit", 0),
		Threshold:   threshold,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(matches)
}

// UpdateVectorTool replaces a stored vector.
type UpdateVectorTool struct {
	svc *memory.Service
}

func NewUpdateVectorTool(svc *memory.Service) *UpdateVectorTool {
	return &UpdateVectorTool{svc: svc}
}

func (t *UpdateVectorTool) Definition() mcp.Tool {
	return mcp.NewTool("updateVector",
		mcp.WithDescription("Replace the vector, and optionally the metadata, of a stored vector record."),
		mcp.WithNumber("vectorId", mcp.Required(), mcp.Description("ID returned by storeVector")),
		mcp.WithArray("vector", mcp.Required(), numberItems, mcp.Description("New vector components")),
		mcp.WithObject("metadata", mcp.Description("Replacement metadata; kept as is when omitted")),
	)
}

func (t *UpdateVectorTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := idArg(req, "vectorId")
	if err != nil {
		return errorResult(err), nil
	}
	vec, err := vectorArg(req, "vector")
	if err != nil {
		return errorResult(err), nil
	}
	md, err := metadataArg(req, "metadata")
	if err != nil {
		return errorResult(err), nil
	}

	resp, err := t.svc.UpdateVector(ctx, id, &models.UpdateVectorRequest{Vector: vec, Metadata: md})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(resp)
}

// DeleteVectorTool removes a stored vector.
type DeleteVectorTool struct {
	svc *memory.Service
}

func NewDeleteVectorTool(svc *memory.Service) *DeleteVectorTool {
	return &DeleteVectorTool{svc: svc}
}

func (t *DeleteVectorTool) Definition() mcp.Tool {
	return mcp.NewTool("deleteVector",
		mcp.WithDescription("Delete a stored vector record."),
		mcp.WithNumber("vectorId", mcp.Required(), mcp.Description("ID returned by storeVector")),
	)
}

func (t *DeleteVectorTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := idArg(req, "vectorId")
	if err != nil {
		return errorResult(err), nil
	}
	resp, err := t.svc.DeleteVector(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(resp)
}
