package memory

import (
	"crypto/sha256"
	"encoding/hex"
)

// EntryType classifies what kind of knowledge an entry holds.
type EntryType string

const (
	EntryTypeFact         EntryType = "fact"
	EntryTypePreference   EntryType = "preference"
	EntryTypeEvent        EntryType = "event"
	EntryTypeInsight      EntryType = "insight"
	EntryTypeTask         EntryType = "task"
	EntryTypeRelationship EntryType = "relationship"
)

// ValidEntryType reports whether t is one of the known entry types.
func ValidEntryType(t EntryType) bool {
	switch t {
	case EntryTypeFact, EntryTypePreference, EntryTypeEvent,
		EntryTypeInsight, EntryTypeTask, EntryTypeRelationship:
		return true
	}
	return false
}

// Entry is the canonical memory record. Content is immutable after creation;
// changes require delete + re-add. Only the access counters are ever mutated.
type Entry struct {
	ID             int64     `json:"id"`
	Content        string    `json:"content"`
	ContentHash    string    `json:"content_hash"`
	EntryType      EntryType `json:"entry_type"`
	Source         string    `json:"source"`
	Context        string    `json:"context,omitempty"`
	Confidence     float64   `json:"confidence"`
	Importance     int       `json:"importance"`
	Tags           []string  `json:"tags"`
	CreatedAt      int64     `json:"created_at"`
	UpdatedAt      int64     `json:"updated_at"`
	ExpiresAt      *int64    `json:"expires_at,omitempty"`
	AccessCount    int64     `json:"access_count"`
	LastAccessedAt *int64    `json:"last_accessed_at,omitempty"`
}

// Expired reports whether the entry's expiry time has passed.
// Expired entries are excluded from search results but remain
// retrievable by id until explicitly deleted.
func (e *Entry) Expired(nowMillis int64) bool {
	return e.ExpiresAt != nil && *e.ExpiresAt <= nowMillis
}

// AddInput describes a new entry submission. Zero-valued fields get
// the store defaults (fact, manual, confidence 1.0, importance 5).
type AddInput struct {
	Content    string    `json:"content"`
	EntryType  EntryType `json:"entry_type,omitempty"`
	Source     string    `json:"source,omitempty"`
	Context    string    `json:"context,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Importance *int      `json:"importance,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	ExpiresAt  *int64    `json:"expires_at,omitempty"`
}

// AddResult reports the outcome of an add. Duplicate submissions return
// the existing entry's id with Created=false, Duplicate=true.
type AddResult struct {
	ID        int64 `json:"id"`
	Created   bool  `json:"created"`
	Duplicate bool  `json:"duplicate"`
}

// SearchMode selects which indices a search consults.
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"
	SearchModeVector  SearchMode = "vector"
	SearchModeKeyword SearchMode = "keyword"
)

// SearchOptions configures a hybrid search. Limit nil means the default cap;
// an explicit zero (or negative) limit yields an empty result set.
type SearchOptions struct {
	Query         string      `json:"query"`
	Mode          SearchMode  `json:"mode,omitempty"`
	Limit         *int        `json:"limit,omitempty"`
	EntryTypes    []EntryType `json:"entry_types,omitempty"`
	MinImportance int         `json:"min_importance,omitempty"`
	MinConfidence float64     `json:"min_confidence,omitempty"`
	Tags          []string    `json:"tags,omitempty"`
	VectorWeight  *float64    `json:"vector_weight,omitempty"`
	KeywordWeight *float64    `json:"keyword_weight,omitempty"`
}

// SearchResult is a ranked search hit. MatchedBy records which indices
// contributed the candidate ("vector", "keyword").
type SearchResult struct {
	Entry     Entry    `json:"entry"`
	Score     float64  `json:"score"`
	MatchedBy []string `json:"matched_by"`
}

// AccessLogEntry is an append-only retrieval record.
type AccessLogEntry struct {
	ID             int64    `json:"id"`
	MemoryID       int64    `json:"memory_id"`
	AccessedAt     int64    `json:"accessed_at"`
	AccessType     string   `json:"access_type"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
	QueryText      string   `json:"query_text,omitempty"`
}

// Stats aggregates store-wide counters. The fields are independent
// reads, not a single consistent snapshot.
type Stats struct {
	TotalEntries    int64            `json:"total_entries"`
	EntriesByType   map[string]int64 `json:"entries_by_type"`
	AvgImportance   float64          `json:"avg_importance"`
	AvgConfidence   float64          `json:"avg_confidence"`
	TotalAccesses   int64            `json:"total_accesses"`
	OldestCreatedAt *int64           `json:"oldest_created_at,omitempty"`
	NewestCreatedAt *int64           `json:"newest_created_at,omitempty"`
}

// ContentHash returns the deterministic digest used as the dedup key.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

const (
	defaultSource     = "manual"
	defaultConfidence = 1.0
	defaultImportance = 5

	// DefaultVectorWeight and DefaultKeywordWeight are the hybrid fusion
	// weights when the caller does not override them.
	DefaultVectorWeight  = 0.7
	DefaultKeywordWeight = 0.3

	// DefaultSearchLimit is the result cap when the caller leaves Limit unset.
	DefaultSearchLimit = 10
)
