package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wmiddendorff/matrioshka-brain-sub001/internal/observability"
	"github.com/wmiddendorff/matrioshka-brain-sub001/internal/tracing"
)

const tracerName = "matrioshka.memory"

// Manager is the operation surface over the store, the hybrid query engine,
// the embedding provider and the file auto-indexer. It is constructed once at
// process start and passed to its consumers; there are no package-level
// singletons.
type Manager struct {
	store    *Store
	provider EmbeddingProvider
	indexer  *Indexer
	logger   zerolog.Logger

	vectorWeight  *float64
	keywordWeight *float64
}

// Config holds manager construction parameters.
type Config struct {
	DBPath        string
	WorkspacePath string // watched by the auto-indexer; empty disables it
	Logger        zerolog.Logger
	Provider      EmbeddingProvider

	// VectorWeight and KeywordWeight are the fusion weights applied when a
	// search does not override them. Nil selects the built-in defaults.
	VectorWeight  *float64
	KeywordWeight *float64
}

// NewManager opens the store and prepares (but does not start) the indexer.
func NewManager(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("embedding provider is required")
	}

	store, err := NewStore(StoreConfig{
		Path:      cfg.DBPath,
		Dimension: cfg.Provider.Dimension(),
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:         store,
		provider:      cfg.Provider,
		logger:        cfg.Logger,
		vectorWeight:  cfg.VectorWeight,
		keywordWeight: cfg.KeywordWeight,
	}
	if cfg.WorkspacePath != "" {
		m.indexer = NewIndexer(store, cfg.Provider, cfg.WorkspacePath, cfg.Logger)
	}

	m.logger.Info().Str("db", cfg.DBPath).Int("dimension", cfg.Provider.Dimension()).
		Msg("Memory manager initialized")
	return m, nil
}

// Add embeds the content and stores it. Duplicate submissions are an
// ordinary outcome, reported through AddResult rather than an error.
func (m *Manager) Add(ctx context.Context, in AddInput) (AddResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.add")
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordMemoryWrite(time.Since(start)) }()

	embedding, err := m.provider.Embed(ctx, in.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return AddResult{}, fmt.Errorf("embed content: %w", err)
	}

	res, err := m.store.AddEntry(ctx, in, embedding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "add failed")
		return AddResult{}, err
	}

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Debug().
		Int64("entry_id", res.ID).Bool("created", res.Created).
		Bool("duplicate", res.Duplicate).Msg("Entry added")
	return res, nil
}

// Get returns the entry with the given id, or nil if absent.
func (m *Manager) Get(ctx context.Context, id int64) (*Entry, error) {
	return m.store.GetEntry(ctx, id)
}

// Delete removes an entry and all its index traces. Returns whether a row
// existed.
func (m *Manager) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.delete",
		attribute.Int64("entry_id", id))
	defer span.End()

	existed, err := m.store.DeleteEntry(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return false, err
	}
	return existed, nil
}

// Search runs the hybrid query and best-effort logs an access for each
// returned entry. Access-log failures never fail the search.
func (m *Manager) Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	requestID, _ := gonanoid.New()
	ctx = tracing.WithRequestID(ctx, requestID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.search",
		attribute.String("query", opts.Query),
		attribute.String("mode", string(opts.Mode)))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, m.logger).With().
		Str("request_id", requestID).Logger()

	start := time.Now()
	defer func() { observability.RecordMemorySearch(time.Since(start)) }()

	mode := opts.Mode
	if mode == "" {
		mode = SearchModeHybrid
	}

	// Configured fusion weights apply when the caller does not override them
	if opts.VectorWeight == nil {
		opts.VectorWeight = m.vectorWeight
	}
	if opts.KeywordWeight == nil {
		opts.KeywordWeight = m.keywordWeight
	}

	var queryEmbedding []float32
	if mode == SearchModeVector || mode == SearchModeHybrid {
		var err error
		queryEmbedding, err = m.provider.Embed(ctx, opts.Query)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "query embedding failed")
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}

	results, err := m.store.Search(ctx, opts, queryEmbedding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}

	for _, r := range results {
		score := r.Score
		if logErr := m.store.LogAccess(ctx, r.Entry.ID, "search", &score, opts.Query); logErr != nil {
			logger.Warn().Err(logErr).Int64("entry_id", r.Entry.ID).
				Msg("Access logging failed")
			continue
		}
		observability.RecordAccessLogged()
	}

	logger.Debug().Str("query", opts.Query).Int("results", len(results)).
		Msg("Search completed")
	return results, nil
}

// LogAccess appends an access-log row for an entry and bumps its counters.
func (m *Manager) LogAccess(ctx context.Context, id int64, accessType string, relevanceScore *float64, queryText string) error {
	if err := m.store.LogAccess(ctx, id, accessType, relevanceScore, queryText); err != nil {
		return err
	}
	observability.RecordAccessLogged()
	return nil
}

// Stats aggregates store-wide counters.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	st, err := m.store.Stats(ctx)
	if err != nil {
		return st, err
	}
	observability.SetMemoryEntries(int(st.TotalEntries))
	return st, nil
}

// StartIndexer begins mirroring workspace files into the store.
func (m *Manager) StartIndexer(opts IndexerOptions) error {
	if m.indexer == nil {
		return errors.New("no workspace path configured")
	}
	return m.indexer.Start(opts)
}

// StopIndexer cancels the watcher and pending debounce timers. Idempotent.
func (m *Manager) StopIndexer() {
	if m.indexer != nil {
		m.indexer.Stop()
	}
}

// IndexerRunning reports whether the auto-indexer is watching.
func (m *Manager) IndexerRunning() bool {
	return m.indexer != nil && m.indexer.Running()
}

// InitialScan walks the workspace once, indexing every qualifying file.
func (m *Manager) InitialScan() (int, error) {
	if m.indexer == nil {
		return 0, errors.New("no workspace path configured")
	}
	count := m.indexer.InitialScan()
	observability.RecordIndexerScan(count)
	return count, nil
}

// Reconcile repairs index orphans left by interrupted writes.
func (m *Manager) Reconcile(ctx context.Context) (ReconcileReport, error) {
	return m.store.Reconcile(ctx)
}

// Close stops the indexer and closes the store.
func (m *Manager) Close() error {
	m.logger.Info().Msg("Closing memory manager")
	m.StopIndexer()
	return m.store.Close()
}
