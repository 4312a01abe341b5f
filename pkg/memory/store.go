package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Store owns the canonical entry table, the sqlite-vec vector index and the
// FTS5 keyword index. One logical write is reflected in all three structures:
// add and delete run inside a single transaction, and the FTS postings are
// kept in sync by triggers on the entries table.
type Store struct {
	db     *sql.DB
	dim    int
	logger zerolog.Logger
}

// StoreConfig holds store construction parameters.
type StoreConfig struct {
	Path      string // database file path
	Dimension int    // embedding dimension; 0 disables the vector index
	Logger    zerolog.Logger
}

// NewStore opens or creates the memory database at cfg.Path.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode so indexer writes and query traffic can share the file,
	// including across processes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		dim:    cfg.Dimension,
		logger: cfg.Logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			entry_type TEXT NOT NULL DEFAULT 'fact',
			source TEXT NOT NULL DEFAULT 'manual',
			context TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 1.0,
			importance INTEGER NOT NULL DEFAULT 5,
			tags TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			expires_at INTEGER,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(entry_type);
		CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_entries_expires ON entries(expires_at);

		CREATE TABLE IF NOT EXISTS access_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id INTEGER NOT NULL,
			accessed_at INTEGER NOT NULL,
			access_type TEXT NOT NULL,
			relevance_score REAL,
			query_text TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_access_log_memory ON access_log(memory_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			content,
			content='entries',
			content_rowid='id',
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS entries_fts_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, content) VALUES (new.id, new.content);
		END;
		CREATE TRIGGER IF NOT EXISTS entries_fts_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, content) VALUES ('delete', old.id, old.content);
		END;
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if s.dim > 0 {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS entries_vec USING vec0(
				entry_id INTEGER PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, s.dim)
		if _, err := s.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("create vector table: %w", err)
		}
	}

	return nil
}

// AddEntry inserts a new entry together with its vector index row in one
// transaction. Submissions whose content hash already exists return the
// existing id with Duplicate=true and write nothing.
//
// The hash pre-check is an optimization only: two concurrent identical
// submissions can both pass it, and the UNIQUE constraint on content_hash is
// the authoritative guard. A constraint violation on insert is converted into
// a duplicate result rather than an error.
func (s *Store) AddEntry(ctx context.Context, in AddInput, embedding []float32) (AddResult, error) {
	if in.Content == "" {
		return AddResult{}, errors.New("content is required")
	}
	// A vector-indexed store never accepts an entry without its vector row;
	// silently skipping the index would break the one-row-per-entry invariant.
	if s.dim > 0 && len(embedding) == 0 {
		return AddResult{}, errors.New("embedding is required")
	}

	hash := ContentHash(in.Content)

	var existingID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM entries WHERE content_hash = ?`, hash).Scan(&existingID)
	if err == nil {
		return AddResult{ID: existingID, Duplicate: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return AddResult{}, fmt.Errorf("check content hash: %w", err)
	}

	entryType := in.EntryType
	if entryType == "" {
		entryType = EntryTypeFact
	}
	if !ValidEntryType(entryType) {
		return AddResult{}, fmt.Errorf("unknown entry type %q", entryType)
	}
	source := in.Source
	if source == "" {
		source = defaultSource
	}
	confidence := defaultConfidence
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	importance := defaultImportance
	if in.Importance != nil {
		importance = *in.Importance
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return AddResult{}, fmt.Errorf("encode tags: %w", err)
	}

	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AddResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entries (content, content_hash, entry_type, source, context,
			confidence, importance, tags, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.Content, hash, string(entryType), source, in.Context,
		confidence, importance, string(tagsJSON), now, now, in.ExpiresAt)
	if err != nil {
		// Lost the race against a concurrent identical submission: the
		// pre-check passed but the uniqueness constraint fired on insert.
		if isUniqueViolation(err) {
			tx.Rollback()
			if lookupErr := s.db.QueryRowContext(ctx,
				`SELECT id FROM entries WHERE content_hash = ?`, hash).Scan(&existingID); lookupErr == nil {
				return AddResult{ID: existingID, Duplicate: true}, nil
			}
			return AddResult{}, fmt.Errorf("resolve duplicate entry: %w", err)
		}
		return AddResult{}, fmt.Errorf("insert entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return AddResult{}, fmt.Errorf("entry id: %w", err)
	}

	if s.dim > 0 {
		embeddingJSON, err := json.Marshal(embedding)
		if err != nil {
			return AddResult{}, fmt.Errorf("encode embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries_vec (entry_id, embedding) VALUES (?, ?)`,
			id, string(embeddingJSON)); err != nil {
			return AddResult{}, fmt.Errorf("insert embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return AddResult{}, fmt.Errorf("commit entry: %w", err)
	}

	return AddResult{ID: id, Created: true}, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

const entryColumns = `id, content, content_hash, entry_type, source, context,
	confidence, importance, tags, created_at, updated_at, expires_at,
	access_count, last_accessed_at`

// GetEntry returns the entry with the given id, or nil if absent.
// Expired entries remain retrievable here until deleted.
func (s *Store) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := s.scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var entryType, tagsJSON string
	var expiresAt, lastAccessedAt sql.NullInt64
	err := row.Scan(&e.ID, &e.Content, &e.ContentHash, &entryType, &e.Source,
		&e.Context, &e.Confidence, &e.Importance, &tagsJSON,
		&e.CreatedAt, &e.UpdatedAt, &expiresAt, &e.AccessCount, &lastAccessedAt)
	if err != nil {
		return nil, err
	}
	e.EntryType = EntryType(entryType)
	if expiresAt.Valid {
		e.ExpiresAt = &expiresAt.Int64
	}
	if lastAccessedAt.Valid {
		e.LastAccessedAt = &lastAccessedAt.Int64
	}
	// Unparsable stored tags degrade to an empty list instead of failing
	// the read.
	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		s.logger.Warn().Int64("entry_id", e.ID).Msg("Unparsable tags, treating as empty")
		e.Tags = []string{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return &e, nil
}

// DeleteEntry removes the entry and all its index traces as one transaction.
// The FTS postings cascade via the delete trigger on the entries table.
// Returns whether a row existed.
func (s *Store) DeleteEntry(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.dim > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entries_vec WHERE entry_id = ?`, id); err != nil {
			return false, fmt.Errorf("delete embedding: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}

	return affected > 0, nil
}

// LogAccess appends an access-log row and bumps the entry's counters in one
// transaction, so access_count stays equal to the number of log rows.
func (s *Store) LogAccess(ctx context.Context, id int64, accessType string, relevanceScore *float64, queryText string) error {
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO access_log (memory_id, accessed_at, access_type, relevance_score, query_text)
		VALUES (?, ?, ?, ?, ?)
	`, id, now, accessType, relevanceScore, queryText); err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE entries SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`, now, id); err != nil {
		return fmt.Errorf("update access counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit access log: %w", err)
	}
	return nil
}

// Stats aggregates store-wide counters. Each field is computed as an
// independent read; the result is not a single consistent snapshot.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{EntriesByType: map[string]int64{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries`).Scan(&st.TotalEntries); err != nil {
		return st, fmt.Errorf("count entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_type, COUNT(*) FROM entries GROUP BY entry_type`)
	if err != nil {
		return st, fmt.Errorf("count by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entryType string
		var count int64
		if err := rows.Scan(&entryType, &count); err != nil {
			return st, fmt.Errorf("count by type: %w", err)
		}
		st.EntriesByType[entryType] = count
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("count by type: %w", err)
	}

	var avgImportance, avgConfidence sql.NullFloat64
	s.db.QueryRowContext(ctx, `SELECT AVG(importance) FROM entries`).Scan(&avgImportance)
	s.db.QueryRowContext(ctx, `SELECT AVG(confidence) FROM entries`).Scan(&avgConfidence)
	st.AvgImportance = avgImportance.Float64
	st.AvgConfidence = avgConfidence.Float64

	var totalAccesses sql.NullInt64
	s.db.QueryRowContext(ctx, `SELECT SUM(access_count) FROM entries`).Scan(&totalAccesses)
	st.TotalAccesses = totalAccesses.Int64

	var oldest, newest sql.NullInt64
	s.db.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM entries`).Scan(&oldest, &newest)
	if oldest.Valid {
		st.OldestCreatedAt = &oldest.Int64
	}
	if newest.Valid {
		st.NewestCreatedAt = &newest.Int64
	}

	return st, nil
}

// AccessLog returns the most recent access-log rows for an entry, newest
// first. Mainly a diagnostics hook; the log itself is append-only.
func (s *Store) AccessLog(ctx context.Context, memoryID int64, limit int) ([]AccessLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, accessed_at, access_type, relevance_score, query_text
		FROM access_log WHERE memory_id = ? ORDER BY accessed_at DESC, id DESC LIMIT ?
	`, memoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	defer rows.Close()

	var out []AccessLogEntry
	for rows.Next() {
		var rec AccessLogEntry
		var score sql.NullFloat64
		var query sql.NullString
		if err := rows.Scan(&rec.ID, &rec.MemoryID, &rec.AccessedAt, &rec.AccessType, &score, &query); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		if score.Valid {
			rec.RelevanceScore = &score.Float64
		}
		rec.QueryText = query.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
