package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitEmbedding(axis int) []float32 {
	emb := make([]float32, testDimension)
	emb[axis] = 1
	return emb
}

func TestSearch_UnknownMode(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Search(context.Background(), SearchOptions{
		Query: "anything",
		Mode:  SearchMode("psychic"),
	}, nil)
	assert.ErrorContains(t, err, "unknown search mode")
}

func TestSearch_KeywordMode(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.AddEntry(ctx, AddInput{Content: "golang concurrency patterns with channels"},
		unitEmbedding(0))
	require.NoError(t, err)
	_, err = s.AddEntry(ctx, AddInput{Content: "cooking pasta recipes from Italy"},
		unitEmbedding(1))
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchOptions{
		Query: "concurrency",
		Mode:  SearchModeKeyword,
	}, nil)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Entry.Content, "concurrency")
	assert.Equal(t, []string{"keyword"}, results[0].MatchedBy)
}

func TestSearch_KeywordMode_BlankQuery(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.AddEntry(ctx, AddInput{Content: "some stored knowledge"}, unitEmbedding(0))
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchOptions{
		Query: "   ",
		Mode:  SearchModeKeyword,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_QuotesInQueryAreSafe(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.AddEntry(ctx, AddInput{Content: "notes about testing"}, unitEmbedding(0))
	require.NoError(t, err)

	_, err = s.Search(ctx, SearchOptions{
		Query: `testing "NEAR( OR *`,
		Mode:  SearchModeKeyword,
	}, nil)
	assert.NoError(t, err)
}

func TestSearch_VectorMode_Ranking(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	near, err := s.AddEntry(ctx, AddInput{Content: "entry near the query"}, unitEmbedding(0))
	require.NoError(t, err)
	far, err := s.AddEntry(ctx, AddInput{Content: "entry far from the query"}, unitEmbedding(1))
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchOptions{
		Query: "irrelevant in vector mode",
		Mode:  SearchModeVector,
	}, unitEmbedding(0))
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, near.ID, results[0].Entry.ID)
	assert.Equal(t, far.ID, results[1].Entry.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, []string{"vector"}, results[0].MatchedBy)
}

func TestSearch_HybridMatchedBy(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.AddEntry(ctx, AddInput{Content: "hybrid retrieval notes"}, unitEmbedding(0))
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchOptions{
		Query: "retrieval",
		Mode:  SearchModeHybrid,
	}, unitEmbedding(0))
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.ElementsMatch(t, []string{"vector", "keyword"}, results[0].MatchedBy)
}

func TestSearch_HybridWeights(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Matches the query embedding but not the query text
	vecOnly, err := s.AddEntry(ctx, AddInput{Content: "semantically adjacent content"},
		unitEmbedding(0))
	require.NoError(t, err)
	// Strong and weak keyword matches, both far away in vector space
	kwStrong, err := s.AddEntry(ctx, AddInput{Content: "anchor anchor anchor phrase"},
		unitEmbedding(1))
	require.NoError(t, err)
	_, err = s.AddEntry(ctx, AddInput{
		Content: "one anchor mention buried among many other unrelated words here",
	}, unitEmbedding(2))
	require.NoError(t, err)

	one, zero := 1.0, 0.0
	results, err := s.Search(ctx, SearchOptions{
		Query:         "anchor",
		Mode:          SearchModeHybrid,
		VectorWeight:  &one,
		KeywordWeight: &zero,
	}, unitEmbedding(0))
	require.NoError(t, err)

	// With the keyword channel weighted to zero, the vector-side match wins
	require.NotEmpty(t, results)
	assert.Equal(t, vecOnly.ID, results[0].Entry.ID)

	results, err = s.Search(ctx, SearchOptions{
		Query:         "anchor",
		Mode:          SearchModeHybrid,
		VectorWeight:  &zero,
		KeywordWeight: &one,
	}, unitEmbedding(0))
	require.NoError(t, err)

	require.NotEmpty(t, results)
	assert.Equal(t, kwStrong.ID, results[0].Entry.ID)
}

func TestSearch_Limit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, content := range []string{
		"shared keyword alpha",
		"shared keyword beta",
		"shared keyword gamma",
	} {
		_, err := s.AddEntry(ctx, AddInput{Content: content}, testEmbedding(content))
		require.NoError(t, err)
	}

	limit := 2
	results, err := s.Search(ctx, SearchOptions{
		Query: "shared",
		Mode:  SearchModeKeyword,
		Limit: &limit,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_ZeroLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, content := range []string{
		"zero limit alpha",
		"zero limit beta",
		"zero limit gamma",
	} {
		_, err := s.AddEntry(ctx, AddInput{Content: content}, testEmbedding(content))
		require.NoError(t, err)
	}

	// An explicit zero limit yields an empty list, not the default cap
	zero := 0
	results, err := s.Search(ctx, SearchOptions{
		Query: "zero limit",
		Mode:  SearchModeKeyword,
		Limit: &zero,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Unset limit falls back to the default cap
	results, err = s.Search(ctx, SearchOptions{
		Query: "zero limit",
		Mode:  SearchModeKeyword,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	lowConfidence := 0.4
	lowImportance := 2
	_, err := s.AddEntry(ctx, AddInput{
		Content:    "filter target low signal",
		EntryType:  EntryTypeEvent,
		Confidence: &lowConfidence,
		Importance: &lowImportance,
		Tags:       []string{"noise"},
	}, testEmbedding("filter target low signal"))
	require.NoError(t, err)

	highConfidence := 0.9
	highImportance := 8
	keep, err := s.AddEntry(ctx, AddInput{
		Content:    "filter target high signal",
		EntryType:  EntryTypeInsight,
		Confidence: &highConfidence,
		Importance: &highImportance,
		Tags:       []string{"signal", "review"},
	}, testEmbedding("filter target high signal"))
	require.NoError(t, err)

	tests := []struct {
		name string
		opts SearchOptions
	}{
		{"entry types", SearchOptions{EntryTypes: []EntryType{EntryTypeInsight}}},
		{"min importance", SearchOptions{MinImportance: 5}},
		{"min confidence", SearchOptions{MinConfidence: 0.5}},
		{"tags any-of", SearchOptions{Tags: []string{"signal", "missing"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.Query = "filter target"
			opts.Mode = SearchModeKeyword

			results, err := s.Search(ctx, opts, nil)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, keep.ID, results[0].Entry.ID)
		})
	}
}

func TestSearch_ExpiredEntriesExcluded(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour).UnixMilli()
	expired, err := s.AddEntry(ctx, AddInput{
		Content:   "expired reminder about deadlines",
		ExpiresAt: &past,
	}, testEmbedding("expired reminder about deadlines"))
	require.NoError(t, err)

	future := time.Now().Add(time.Hour).UnixMilli()
	live, err := s.AddEntry(ctx, AddInput{
		Content:   "live reminder about deadlines",
		ExpiresAt: &future,
	}, testEmbedding("live reminder about deadlines"))
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchOptions{
		Query: "reminder deadlines",
		Mode:  SearchModeKeyword,
	}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, live.ID, results[0].Entry.ID)

	// Expired entries stay retrievable by id until deleted
	entry, err := s.GetEntry(ctx, expired.ID)
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestSearch_HybridVectorOnlyMatchesVectorMode(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, content := range []string{
		"corpus entry one",
		"corpus entry two",
		"corpus entry three",
	} {
		_, err := s.AddEntry(ctx, AddInput{Content: content}, unitEmbedding(i))
		require.NoError(t, err)
	}

	// Distinct distance to each axis so the ranking is total
	query := make([]float32, testDimension)
	query[0], query[1], query[2] = 0.9, 0.5, 0.1

	vectorResults, err := s.Search(ctx, SearchOptions{
		Query: "corpus entry",
		Mode:  SearchModeVector,
	}, query)
	require.NoError(t, err)
	require.Len(t, vectorResults, 3)

	one, zero := 1.0, 0.0
	hybridResults, err := s.Search(ctx, SearchOptions{
		Query:         "corpus entry",
		Mode:          SearchModeHybrid,
		VectorWeight:  &one,
		KeywordWeight: &zero,
	}, query)
	require.NoError(t, err)
	require.Len(t, hybridResults, 3)

	// With the keyword channel weighted out, hybrid ranks exactly as vector
	// mode does
	for i := range vectorResults {
		assert.Equal(t, vectorResults[i].Entry.ID, hybridResults[i].Entry.ID)
		assert.InDelta(t, vectorResults[i].Score, hybridResults[i].Score, 1e-9)
	}
}

func TestBuildMatchQuery(t *testing.T) {
	assert.Equal(t, "", buildMatchQuery(""))
	assert.Equal(t, "", buildMatchQuery("   "))
	assert.Equal(t, `"hello"`, buildMatchQuery("hello"))
	assert.Equal(t, `"hello" OR "world"`, buildMatchQuery("hello world"))
	assert.Equal(t, `"say""hi"""`, buildMatchQuery(`say"hi"`))
}

func TestFuseScores_Normalization(t *testing.T) {
	vectorHits := []vectorHit{
		{entryID: 1, distance: 0},
		{entryID: 2, distance: 1},
	}
	keywordHits := []keywordHit{
		{entryID: 2, rank: -5}, // best keyword match
		{entryID: 3, rank: -1},
	}

	candidates := fuseScores(vectorHits, keywordHits, SearchModeHybrid,
		DefaultVectorWeight, DefaultKeywordWeight)

	require.Len(t, candidates, 3)

	// Discovery order: vector hits first, then keyword-only hits
	assert.Equal(t, int64(1), candidates[0].entryID)
	assert.Equal(t, int64(2), candidates[1].entryID)
	assert.Equal(t, int64(3), candidates[2].entryID)

	// Distance 0 normalizes to 1, distance 1 to 0.5 with denom 2
	assert.InDelta(t, 1.0*0.7, candidates[0].score, 1e-9)
	assert.InDelta(t, 0.5*0.7+1.0*0.3, candidates[1].score, 1e-9)
	assert.InDelta(t, 0.0, candidates[2].score, 1e-9)

	assert.Equal(t, []string{"vector"}, candidates[0].matchedBy)
	assert.ElementsMatch(t, []string{"vector", "keyword"}, candidates[1].matchedBy)
	assert.Equal(t, []string{"keyword"}, candidates[2].matchedBy)
}

func TestFuseScores_UniformKeywordRanks(t *testing.T) {
	keywordHits := []keywordHit{
		{entryID: 1, rank: -2},
		{entryID: 2, rank: -2},
	}

	candidates := fuseScores(nil, keywordHits, SearchModeKeyword, 0.7, 0.3)

	require.Len(t, candidates, 2)
	// Zero span falls back to 1, so identical ranks all score 0
	assert.Equal(t, 0.0, candidates[0].score)
	assert.Equal(t, 0.0, candidates[1].score)
}
