package memory

import (
	"context"
	"fmt"
)

// MemoryAddParams defines parameters for the memory_add tool
type MemoryAddParams struct {
	Content    string   `json:"content"`
	EntryType  string   `json:"entry_type,omitempty"`
	Source     string   `json:"source,omitempty"`
	Context    string   `json:"context,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Importance *int     `json:"importance,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	ExpiresAt  *int64   `json:"expires_at,omitempty"`
}

// MemoryAdd stores a new entry, embedding it first
func MemoryAdd(ctx context.Context, manager *Manager, params MemoryAddParams) (*AddResult, error) {
	if params.Content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if params.EntryType != "" && !ValidEntryType(EntryType(params.EntryType)) {
		return nil, fmt.Errorf("invalid entry type: %s", params.EntryType)
	}

	res, err := manager.Add(ctx, AddInput{
		Content:    params.Content,
		EntryType:  EntryType(params.EntryType),
		Source:     params.Source,
		Context:    params.Context,
		Confidence: params.Confidence,
		Importance: params.Importance,
		Tags:       params.Tags,
		ExpiresAt:  params.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("add failed: %w", err)
	}

	return &res, nil
}

// MemorySearchParams defines parameters for the memory_search tool
type MemorySearchParams struct {
	Query         string   `json:"query"`
	Mode          string   `json:"mode,omitempty"`
	Limit         *int     `json:"limit,omitempty"`
	EntryTypes    []string `json:"entry_types,omitempty"`
	MinImportance int      `json:"min_importance,omitempty"`
	MinConfidence float64  `json:"min_confidence,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	VectorWeight  *float64 `json:"vector_weight,omitempty"`
	KeywordWeight *float64 `json:"keyword_weight,omitempty"`
}

// MemorySearchResult represents the result of a memory search
type MemorySearchResult struct {
	Results []SearchResult `json:"results"`
	Query   string         `json:"query"`
	Count   int            `json:"count"`
}

// MemorySearch runs a hybrid search over stored entries
func MemorySearch(ctx context.Context, manager *Manager, params MemorySearchParams) (*MemorySearchResult, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	types := make([]EntryType, 0, len(params.EntryTypes))
	for _, t := range params.EntryTypes {
		et := EntryType(t)
		if !ValidEntryType(et) {
			return nil, fmt.Errorf("invalid entry type: %s", t)
		}
		types = append(types, et)
	}

	results, err := manager.Search(ctx, SearchOptions{
		Query:         params.Query,
		Mode:          SearchMode(params.Mode),
		Limit:         params.Limit,
		EntryTypes:    types,
		MinImportance: params.MinImportance,
		MinConfidence: params.MinConfidence,
		Tags:          params.Tags,
		VectorWeight:  params.VectorWeight,
		KeywordWeight: params.KeywordWeight,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return &MemorySearchResult{
		Results: results,
		Query:   params.Query,
		Count:   len(results),
	}, nil
}

// MemoryForgetParams defines parameters for the memory_forget tool
type MemoryForgetParams struct {
	ID int64 `json:"id"`
}

// MemoryForgetResult represents the result of a memory forget
type MemoryForgetResult struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

// MemoryForget removes an entry and its index traces
func MemoryForget(ctx context.Context, manager *Manager, params MemoryForgetParams) (*MemoryForgetResult, error) {
	if params.ID <= 0 {
		return nil, fmt.Errorf("id is required")
	}

	deleted, err := manager.Delete(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("delete failed: %w", err)
	}

	return &MemoryForgetResult{
		ID:      params.ID,
		Deleted: deleted,
	}, nil
}

// MemoryStats returns store-wide aggregates
func MemoryStats(ctx context.Context, manager *Manager) (*Stats, error) {
	stats, err := manager.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats failed: %w", err)
	}
	return &stats, nil
}
