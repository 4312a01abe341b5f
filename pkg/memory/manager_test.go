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

func createTestManager(t *testing.T) (*Manager, string) {
	t.Helper()

	workspace := t.TempDir()
	dbPath := filepath.Join(workspace, "test.db")
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	m, err := NewManager(Config{
		DBPath:        dbPath,
		WorkspacePath: workspace,
		Logger:        logger,
		Provider:      NewMockEmbeddingProvider(testDimension),
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	return m, workspace
}

func TestNewManager_InvalidConfig(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	tests := []struct {
		name   string
		config Config
	}{
		{
			name: "empty db path",
			config: Config{
				Logger:   logger,
				Provider: NewMockEmbeddingProvider(testDimension),
			},
		},
		{
			name: "missing provider",
			config: Config{
				DBPath: filepath.Join(t.TempDir(), "test.db"),
				Logger: logger,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(tt.config)
			assert.Error(t, err)
			assert.Nil(t, m)
		})
	}
}

func TestManager_AddGetDelete(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	res, err := m.Add(ctx, AddInput{Content: "the meeting moved to Tuesday"})
	require.NoError(t, err)
	assert.True(t, res.Created)

	entry, err := m.Get(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "the meeting moved to Tuesday", entry.Content)

	deleted, err := m.Delete(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	entry, err = m.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestManager_AddDuplicate(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	first, err := m.Add(ctx, AddInput{Content: "dedup me"})
	require.NoError(t, err)
	second, err := m.Add(ctx, AddInput{Content: "dedup me"})
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)
}

func TestManager_SearchLogsAccess(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	res, err := m.Add(ctx, AddInput{Content: "searchable knowledge nugget"})
	require.NoError(t, err)

	results, err := m.Search(ctx, SearchOptions{Query: "nugget"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, res.ID, results[0].Entry.ID)

	entry, err := m.Get(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(1), entry.AccessCount)
	assert.NotNil(t, entry.LastAccessedAt)
}

func TestManager_ConfiguredFusionWeights(t *testing.T) {
	workspace := t.TempDir()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	vw, kw := 0.0, 1.0
	m, err := NewManager(Config{
		DBPath:        filepath.Join(workspace, "test.db"),
		Logger:        logger,
		Provider:      NewMockEmbeddingProvider(testDimension),
		VectorWeight:  &vw,
		KeywordWeight: &kw,
	})
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	strong, err := m.Add(ctx, AddInput{Content: "anchor anchor anchor phrase"})
	require.NoError(t, err)
	_, err = m.Add(ctx, AddInput{Content: "a single anchor buried in a much longer rambling note about unrelated things"})
	require.NoError(t, err)

	// With keyword-only weights the vector scores contribute nothing, so the
	// term-dense entry must rank first regardless of embedding geometry.
	results, err := m.Search(ctx, SearchOptions{Query: "anchor"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, strong.ID, results[0].Entry.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestManager_Stats(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	_, err := m.Add(ctx, AddInput{Content: "first"})
	require.NoError(t, err)
	_, err = m.Add(ctx, AddInput{Content: "second", EntryType: EntryTypeTask})
	require.NoError(t, err)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.EntriesByType["task"])
}

func TestManager_IndexerLifecycle(t *testing.T) {
	m, workspace := createTestManager(t)

	require.NoError(t, os.WriteFile(filepath.Join(workspace, "seed.md"),
		[]byte("seeded workspace note"), 0o644))

	count, err := m.InitialScan()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, m.StartIndexer(IndexerOptions{SkipInitialScan: true}))
	assert.True(t, m.IndexerRunning())

	m.StopIndexer()
	assert.False(t, m.IndexerRunning())
}

func TestManager_IndexerRequiresWorkspace(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	m, err := NewManager(Config{
		DBPath:   filepath.Join(t.TempDir(), "test.db"),
		Logger:   logger,
		Provider: NewMockEmbeddingProvider(testDimension),
	})
	require.NoError(t, err)
	defer m.Close()

	assert.Error(t, m.StartIndexer(IndexerOptions{}))
	_, err = m.InitialScan()
	assert.Error(t, err)
	assert.False(t, m.IndexerRunning())
}

func TestManager_Reconcile(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	_, err := m.Add(ctx, AddInput{Content: "intact entry"})
	require.NoError(t, err)

	report, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.OrphanVectors)
	assert.Equal(t, int64(0), report.MissingVectors)
}
