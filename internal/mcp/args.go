package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
	"github.com/iammorganparry/clive/apps/recall/internal/store"
)

func badArgs(format string, args ...any) error {
	return fmt.Errorf("%w: %s", memory.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// vectorArg reads a required array of numbers.
func vectorArg(req mcp.CallToolRequest, key string) ([]float32, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, badArgs("%s is required", key)
	}
	items, ok := raw.([]any)
	if !ok {
		if fs, isFloats := raw.([]float64); isFloats {
			items = make([]any, len(fs))
			for i, f := range fs {
				items[i] = f
			}
		} else {
			return nil, badArgs("%s must be an array of numbers", key)
		}
	}
	out := make([]float32, len(items))
	for i, it := range items {
		f, err := number(it)
		if err != nil {
			return nil, badArgs("%s[%d]: %v", key, i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// idArg reads a required positive integer ID given as a number or string.
func idArg(req mcp.CallToolRequest, key string) (int64, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return 0, badArgs("%s is required", key)
	}
	f, err := number(raw)
	if err != nil || f != math.Trunc(f) || f <= 0 {
		return 0, badArgs("%s must be a positive integer", key)
	}
	return int64(f), nil
}

// metadataArg reads an optional object, also accepted as a JSON string.
func metadataArg(req mcp.CallToolRequest, key string) (models.Metadata, error) {
	switch v := req.GetArguments()[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return models.Metadata(v), nil
	case string:
		if v == "" {
			return nil, nil
		}
		var md models.Metadata
		if err := json.Unmarshal([]byte(v), &md); err != nil {
			return nil, badArgs("%s must be a JSON object: %v", key, err)
		}
		return md, nil
	default:
		return nil, badArgs("%s must be an object", key)
	}
}

// optionalFloat returns nil when key is absent.
func optionalFloat(req mcp.CallToolRequest, key string) (*float64, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	f, err := number(raw)
	if err != nil {
		return nil, badArgs("%s: %v", key, err)
	}
	return &f, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// jsonResult renders v as the tool's text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult maps service errors onto tool error results.
func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	case errors.Is(err, memory.ErrInvalidArgument):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError("internal error: " + err.Error())
	}
}
