package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wmiddendorff/matrioshka-brain-sub001/pkg/tools"
)

// ToolRegistry interface for registering tools
// This avoids circular dependency with pkg/tools
type ToolRegistry interface {
	Register(def tools.ToolDefinition) error
}

// RegisterMemoryTools registers all memory tools with the tool registry
func RegisterMemoryTools(registry ToolRegistry, manager *Manager) error {
	defs := []tools.ToolDefinition{
		{
			Name:        "memory_add",
			Description: "Store a new memory entry with automatic deduplication",
			Parameters: []tools.ToolParameter{
				{
					Name:        "content",
					Type:        "string",
					Description: "The knowledge to remember",
					Required:    true,
				},
				{
					Name:        "entry_type",
					Type:        "string",
					Description: "Entry classification (fact, preference, event, insight, task, relationship)",
					Required:    false,
					Default:     "fact",
				},
				{
					Name:        "source",
					Type:        "string",
					Description: "Where the knowledge came from",
					Required:    false,
				},
				{
					Name:        "context",
					Type:        "string",
					Description: "Free-text situational context",
					Required:    false,
				},
				{
					Name:        "confidence",
					Type:        "number",
					Description: "Confidence in the knowledge (0-1)",
					Required:    false,
				},
				{
					Name:        "importance",
					Type:        "integer",
					Description: "Importance ranking (1-10)",
					Required:    false,
				},
				{
					Name:        "tags",
					Type:        "array",
					Description: "Free-form tags for filtering",
					Required:    false,
				},
				{
					Name:        "expires_at",
					Type:        "integer",
					Description: "Expiry time in unix milliseconds",
					Required:    false,
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				var addParams MemoryAddParams
				jsonData, err := json.Marshal(params)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal params: %w", err)
				}
				if err := json.Unmarshal(jsonData, &addParams); err != nil {
					return nil, fmt.Errorf("failed to unmarshal params: %w", err)
				}

				return MemoryAdd(ctx, manager, addParams)
			},
		},
		{
			Name:        "memory_search",
			Description: "Search memory entries using hybrid vector and keyword search",
			Parameters: []tools.ToolParameter{
				{
					Name:        "query",
					Type:        "string",
					Description: "Search query",
					Required:    true,
				},
				{
					Name:        "mode",
					Type:        "string",
					Description: "Search mode (hybrid, vector, keyword)",
					Required:    false,
					Default:     "hybrid",
				},
				{
					Name:        "limit",
					Type:        "integer",
					Description: "Maximum number of results to return",
					Required:    false,
					Default:     10,
				},
				{
					Name:        "entry_types",
					Type:        "array",
					Description: "Restrict results to these entry types",
					Required:    false,
				},
				{
					Name:        "min_importance",
					Type:        "integer",
					Description: "Minimum importance threshold",
					Required:    false,
				},
				{
					Name:        "min_confidence",
					Type:        "number",
					Description: "Minimum confidence threshold",
					Required:    false,
				},
				{
					Name:        "tags",
					Type:        "array",
					Description: "Keep only entries carrying at least one of these tags",
					Required:    false,
				},
				{
					Name:        "vector_weight",
					Type:        "number",
					Description: "Weight for vector similarity (0-1)",
					Required:    false,
				},
				{
					Name:        "keyword_weight",
					Type:        "number",
					Description: "Weight for keyword matching (0-1)",
					Required:    false,
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				var searchParams MemorySearchParams
				jsonData, err := json.Marshal(params)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal params: %w", err)
				}
				if err := json.Unmarshal(jsonData, &searchParams); err != nil {
					return nil, fmt.Errorf("failed to unmarshal params: %w", err)
				}

				return MemorySearch(ctx, manager, searchParams)
			},
		},
		{
			Name:        "memory_forget",
			Description: "Delete a memory entry and all its index traces",
			Parameters: []tools.ToolParameter{
				{
					Name:        "id",
					Type:        "integer",
					Description: "ID of the entry to delete",
					Required:    true,
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				var forgetParams MemoryForgetParams
				jsonData, err := json.Marshal(params)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal params: %w", err)
				}
				if err := json.Unmarshal(jsonData, &forgetParams); err != nil {
					return nil, fmt.Errorf("failed to unmarshal params: %w", err)
				}

				return MemoryForget(ctx, manager, forgetParams)
			},
		},
		{
			Name:        "memory_stats",
			Description: "Report store-wide memory statistics",
			Parameters:  []tools.ToolParameter{},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return MemoryStats(ctx, manager)
			},
		},
	}

	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}

	return nil
}
