package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 8

func createTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	s, err := NewStore(StoreConfig{
		Path:      dbPath,
		Dimension: testDimension,
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func testEmbedding(text string) []float32 {
	p := NewMockEmbeddingProvider(testDimension)
	emb, _ := p.Embed(context.Background(), text)
	return emb
}

func TestNewStore_RequiresPath(t *testing.T) {
	_, err := NewStore(StoreConfig{})
	assert.Error(t, err)
}

func TestAddEntry_Defaults(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res, err := s.AddEntry(ctx, AddInput{Content: "the capital of France is Paris"},
		testEmbedding("the capital of France is Paris"))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Duplicate)
	assert.Greater(t, res.ID, int64(0))

	entry, err := s.GetEntry(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, EntryTypeFact, entry.EntryType)
	assert.Equal(t, "manual", entry.Source)
	assert.Equal(t, 1.0, entry.Confidence)
	assert.Equal(t, 5, entry.Importance)
	assert.Equal(t, []string{}, entry.Tags)
	assert.Equal(t, ContentHash(entry.Content), entry.ContentHash)
	assert.Equal(t, int64(0), entry.AccessCount)
	assert.Nil(t, entry.LastAccessedAt)
	assert.Greater(t, entry.CreatedAt, int64(0))
}

func TestAddEntry_ExplicitFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	confidence := 0.8
	importance := 9
	res, err := s.AddEntry(ctx, AddInput{
		Content:    "user prefers dark mode",
		EntryType:  EntryTypePreference,
		Source:     "conversation",
		Context:    "settings discussion",
		Confidence: &confidence,
		Importance: &importance,
		Tags:       []string{"ui", "settings"},
	}, testEmbedding("user prefers dark mode"))
	require.NoError(t, err)

	entry, err := s.GetEntry(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, EntryTypePreference, entry.EntryType)
	assert.Equal(t, "conversation", entry.Source)
	assert.Equal(t, "settings discussion", entry.Context)
	assert.Equal(t, 0.8, entry.Confidence)
	assert.Equal(t, 9, entry.Importance)
	assert.Equal(t, []string{"ui", "settings"}, entry.Tags)
}

func TestAddEntry_InvalidType(t *testing.T) {
	s := createTestStore(t)

	_, err := s.AddEntry(context.Background(), AddInput{
		Content:   "something",
		EntryType: EntryType("opinion"),
	}, testEmbedding("something"))
	assert.ErrorContains(t, err, "unknown entry type")
}

func TestAddEntry_EmptyContent(t *testing.T) {
	s := createTestStore(t)

	_, err := s.AddEntry(context.Background(), AddInput{}, nil)
	assert.Error(t, err)
}

func TestAddEntry_MissingEmbedding(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.AddEntry(ctx, AddInput{Content: "no vector supplied"}, nil)
	assert.ErrorContains(t, err, "embedding is required")

	// Nothing may be written when the vector row cannot be
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEntries)
}

func TestAddEntry_Duplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.AddEntry(ctx, AddInput{Content: "remember this"},
		testEmbedding("remember this"))
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := s.AddEntry(ctx, AddInput{Content: "remember this"},
		testEmbedding("remember this"))
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
}

func TestGetEntry_Absent(t *testing.T) {
	s := createTestStore(t)

	entry, err := s.GetEntry(context.Background(), 9999)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestDeleteEntry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res, err := s.AddEntry(ctx, AddInput{Content: "transient knowledge"},
		testEmbedding("transient knowledge"))
	require.NoError(t, err)

	existed, err := s.DeleteEntry(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	entry, err := s.GetEntry(ctx, res.ID)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// No vector orphan should remain
	var orphans int64
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM entries_vec WHERE entry_id = ?`, res.ID).Scan(&orphans))
	assert.Equal(t, int64(0), orphans)

	// No FTS match should remain
	results, err := s.Search(ctx, SearchOptions{
		Query: "transient",
		Mode:  SearchModeKeyword,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteEntry_Absent(t *testing.T) {
	s := createTestStore(t)

	existed, err := s.DeleteEntry(context.Background(), 9999)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestLogAccess_CountersMatchLogRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res, err := s.AddEntry(ctx, AddInput{Content: "frequently used"},
		testEmbedding("frequently used"))
	require.NoError(t, err)

	score := 0.9
	for i := 0; i < 3; i++ {
		require.NoError(t, s.LogAccess(ctx, res.ID, "search", &score, "used"))
	}

	entry, err := s.GetEntry(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(3), entry.AccessCount)
	assert.NotNil(t, entry.LastAccessedAt)

	log, err := s.AccessLog(ctx, res.ID, 10)
	require.NoError(t, err)
	assert.Len(t, log, 3)
	assert.Equal(t, "search", log[0].AccessType)
	assert.Equal(t, "used", log[0].QueryText)
	require.NotNil(t, log[0].RelevanceScore)
	assert.Equal(t, 0.9, *log[0].RelevanceScore)
}

func TestStats(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	importance := 7
	_, err := s.AddEntry(ctx, AddInput{Content: "fact one", Importance: &importance},
		testEmbedding("fact one"))
	require.NoError(t, err)
	importance3 := 3
	_, err = s.AddEntry(ctx, AddInput{
		Content:    "a task to do",
		EntryType:  EntryTypeTask,
		Importance: &importance3,
	}, testEmbedding("a task to do"))
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.EntriesByType["fact"])
	assert.Equal(t, int64(1), stats.EntriesByType["task"])
	assert.Equal(t, 5.0, stats.AvgImportance)
	assert.Equal(t, 1.0, stats.AvgConfidence)
	assert.NotNil(t, stats.OldestCreatedAt)
	assert.NotNil(t, stats.NewestCreatedAt)
}

func TestStats_Empty(t *testing.T) {
	s := createTestStore(t)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.TotalEntries)
	assert.Empty(t, stats.EntriesByType)
	assert.Nil(t, stats.OldestCreatedAt)
	assert.Nil(t, stats.NewestCreatedAt)
}

func TestScanEntry_UnparsableTagsDegrade(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res, err := s.AddEntry(ctx, AddInput{Content: "tags get mangled", Tags: []string{"a"}},
		testEmbedding("tags get mangled"))
	require.NoError(t, err)

	_, err = s.db.Exec(`UPDATE entries SET tags = 'not json' WHERE id = ?`, res.ID)
	require.NoError(t, err)

	entry, err := s.GetEntry(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []string{}, entry.Tags)
}

func TestReconcile_RepairsOrphanVectors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res, err := s.AddEntry(ctx, AddInput{Content: "entry with vector"},
		testEmbedding("entry with vector"))
	require.NoError(t, err)

	// Simulate an interrupted delete that left the vector row behind
	_, err = s.db.Exec(`DELETE FROM entries WHERE id = ?`, res.ID)
	require.NoError(t, err)

	report, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.OrphanVectors)

	var remaining int64
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM entries_vec`).Scan(&remaining))
	assert.Equal(t, int64(0), remaining)
}
