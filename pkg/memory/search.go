package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

func timeNowMillis() int64 {
	return time.Now().UnixMilli()
}

// matchedByVector and matchedByKeyword tag which index produced a candidate.
const (
	matchedByVector  = "vector"
	matchedByKeyword = "keyword"
)

type vectorHit struct {
	entryID  int64
	distance float64
}

type keywordHit struct {
	entryID int64
	rank    float64 // bm25: more negative is a better match
}

// Search runs the hybrid query. queryEmbedding is the embedded query text; it
// may be nil in keyword mode. Results are ranked by fused score and capped at
// opts.Limit after post-filtering.
func (s *Store) Search(ctx context.Context, opts SearchOptions, queryEmbedding []float32) ([]SearchResult, error) {
	mode := opts.Mode
	if mode == "" {
		mode = SearchModeHybrid
	}
	switch mode {
	case SearchModeHybrid, SearchModeVector, SearchModeKeyword:
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}

	limit := DefaultSearchLimit
	if opts.Limit != nil {
		if *opts.Limit <= 0 {
			return []SearchResult{}, nil
		}
		limit = *opts.Limit
	}
	// Over-fetch to leave room for post-filtering.
	pool := limit * 3

	vectorWeight := DefaultVectorWeight
	if opts.VectorWeight != nil {
		vectorWeight = *opts.VectorWeight
	}
	keywordWeight := DefaultKeywordWeight
	if opts.KeywordWeight != nil {
		keywordWeight = *opts.KeywordWeight
	}

	var vectorHits []vectorHit
	if mode == SearchModeVector || mode == SearchModeHybrid {
		var err error
		vectorHits, err = s.vectorSearch(ctx, queryEmbedding, pool)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
	}

	var keywordHits []keywordHit
	if mode == SearchModeKeyword || mode == SearchModeHybrid {
		var err error
		keywordHits, err = s.keywordSearch(ctx, opts.Query, pool)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
	}

	candidates := fuseScores(vectorHits, keywordHits, mode, vectorWeight, keywordWeight)

	// Stable sort keeps discovery order on equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	nowMillis := timeNowMillis()
	results := make([]SearchResult, 0, limit)
	for _, c := range candidates {
		if len(results) >= limit {
			break
		}
		entry, err := s.GetEntry(ctx, c.entryID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			// Deleted between index read and load; its index traces are
			// gone too, so just skip.
			continue
		}
		if !passesFilters(entry, opts, nowMillis) {
			continue
		}
		results = append(results, SearchResult{
			Entry:     *entry,
			Score:     c.score,
			MatchedBy: c.matchedBy,
		})
	}

	return results, nil
}

// vectorSearch fetches the pool nearest entries by cosine distance.
func (s *Store) vectorSearch(ctx context.Context, queryEmbedding []float32, pool int) ([]vectorHit, error) {
	if s.dim == 0 || len(queryEmbedding) == 0 {
		return nil, nil
	}

	embeddingJSON, err := json.Marshal(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("encode query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, vec_distance_cosine(embedding, ?) AS distance
		FROM entries_vec
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), pool)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []vectorHit
	for rows.Next() {
		var h vectorHit
		if err := rows.Scan(&h.entryID, &h.distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// keywordSearch runs the FTS5 ranked query. Empty or whitespace-only queries
// short-circuit to an empty result set.
func (s *Store) keywordSearch(ctx context.Context, query string, pool int) ([]keywordHit, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, bm25(entries_fts) AS rank
		FROM entries_fts
		WHERE entries_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, pool)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []keywordHit
	for rows.Next() {
		var h keywordHit
		if err := rows.Scan(&h.entryID, &h.rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// buildMatchQuery quotes each term so user input cannot inject FTS5 syntax,
// joining terms with OR. Returns "" for blank queries.
func buildMatchQuery(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return ""
	}
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, `""`)
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

type candidate struct {
	entryID   int64
	score     float64
	matchedBy []string
}

// fuseScores normalizes each batch's scores and merges the two hit sets into
// one candidate list, preserving discovery order (vector hits first, then
// keyword-only hits).
//
// Both normalizations are relative to the current batch, not an absolute
// scale: the same query/entry pair can score differently depending on what
// else came back. Kept as-is for compatibility with existing consumers.
func fuseScores(vectorHits []vectorHit, keywordHits []keywordHit, mode SearchMode, vectorWeight, keywordWeight float64) []candidate {
	vectorScores := make(map[int64]float64, len(vectorHits))
	if len(vectorHits) > 0 {
		maxDist := 1e-6
		for _, h := range vectorHits {
			if h.distance > maxDist {
				maxDist = h.distance
			}
		}
		denom := math.Max(maxDist*2, 2)
		for _, h := range vectorHits {
			vectorScores[h.entryID] = clamp01(1 - h.distance/denom)
		}
	}

	keywordScores := make(map[int64]float64, len(keywordHits))
	if len(keywordHits) > 0 {
		minRank, maxRank := keywordHits[0].rank, keywordHits[0].rank
		for _, h := range keywordHits {
			if h.rank < minRank {
				minRank = h.rank
			}
			if h.rank > maxRank {
				maxRank = h.rank
			}
		}
		span := maxRank - minRank
		if span == 0 {
			span = 1
		}
		for _, h := range keywordHits {
			keywordScores[h.entryID] = clamp01((maxRank - h.rank) / span)
		}
	}

	candidates := make([]candidate, 0, len(vectorScores)+len(keywordScores))
	seen := make(map[int64]bool, len(vectorScores)+len(keywordScores))

	appendCandidate := func(id int64) {
		if seen[id] {
			return
		}
		seen[id] = true

		var score float64
		var matchedBy []string
		vecScore, hasVec := vectorScores[id]
		kwScore, hasKw := keywordScores[id]

		switch mode {
		case SearchModeVector:
			score = vecScore
			matchedBy = []string{matchedByVector}
		case SearchModeKeyword:
			score = kwScore
			matchedBy = []string{matchedByKeyword}
		default:
			if hasVec {
				score += vecScore * vectorWeight
				matchedBy = append(matchedBy, matchedByVector)
			}
			if hasKw {
				score += kwScore * keywordWeight
				matchedBy = append(matchedBy, matchedByKeyword)
			}
		}

		candidates = append(candidates, candidate{
			entryID:   id,
			score:     score,
			matchedBy: matchedBy,
		})
	}

	for _, h := range vectorHits {
		appendCandidate(h.entryID)
	}
	for _, h := range keywordHits {
		appendCandidate(h.entryID)
	}

	return candidates
}

// passesFilters applies the caller filters in order: entry type membership,
// minimum importance, minimum confidence, tag intersection, and expiry.
// Filters only remove candidates; they never reorder survivors.
func passesFilters(entry *Entry, opts SearchOptions, nowMillis int64) bool {
	if len(opts.EntryTypes) > 0 {
		found := false
		for _, t := range opts.EntryTypes {
			if entry.EntryType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if opts.MinImportance > 0 && entry.Importance < opts.MinImportance {
		return false
	}

	if opts.MinConfidence > 0 && entry.Confidence < opts.MinConfidence {
		return false
	}

	if len(opts.Tags) > 0 {
		found := false
		for _, want := range opts.Tags {
			for _, have := range entry.Tags {
				if want == have {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}

	return !entry.Expired(nowMillis)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
