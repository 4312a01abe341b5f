package memory

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	defaultDebounce     = 500 * time.Millisecond
	defaultPollInterval = 5 * time.Second
	defaultMaxFileSize  = 100 * 1024
)

// indexerSource tags entries created by the auto-indexer.
const indexerSource = "file-index"

// Indexer continuously mirrors qualifying workspace text files into the
// store. It keeps an in-memory path -> content-hash cache so unchanged files
// are skipped; the cache is not persisted, which is safe because the store's
// content-hash uniqueness still prevents duplicate entries after a restart.
type Indexer struct {
	store    *Store
	provider EmbeddingProvider
	root     string
	logger   zerolog.Logger

	debounce    time.Duration
	maxFileSize int64
	extensions  map[string]bool

	mu      sync.Mutex
	running bool
	hashes  map[string]string
	timers  map[string]*time.Timer
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// IndexerOptions configures Start.
type IndexerOptions struct {
	// Interval is the polling fallback interval used when the event-driven
	// watch cannot be established. Zero means the 5s default.
	Interval time.Duration
	// SkipInitialScan suppresses the full tree scan on start.
	SkipInitialScan bool
}

// NewIndexer creates an indexer for the tree rooted at root. It does not
// start watching until Start is called.
func NewIndexer(store *Store, provider EmbeddingProvider, root string, logger zerolog.Logger) *Indexer {
	return &Indexer{
		store:       store,
		provider:    provider,
		root:        root,
		logger:      logger.With().Str("component", "indexer").Logger(),
		debounce:    defaultDebounce,
		maxFileSize: defaultMaxFileSize,
		extensions:  map[string]bool{".md": true, ".txt": true},
		hashes:      make(map[string]string),
		timers:      make(map[string]*time.Timer),
	}
}

// Start begins watching the tree. It prefers an event-driven fsnotify watch
// and falls back to interval polling when the watcher cannot be created.
// Per-file failures are logged and skipped; they never surface here.
func (ix *Indexer) Start(opts IndexerOptions) error {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return nil
	}
	ix.running = true
	ix.stopCh = make(chan struct{})
	ix.mu.Unlock()

	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = ix.watchTree(watcher)
		if err != nil {
			watcher.Close()
		}
	}

	if err != nil {
		ix.logger.Warn().Err(err).Dur("interval", interval).
			Msg("File watch unavailable, falling back to polling")
		ix.wg.Add(1)
		go ix.pollLoop(interval)
	} else {
		ix.mu.Lock()
		ix.watcher = watcher
		ix.mu.Unlock()
		ix.wg.Add(1)
		go ix.watchLoop(watcher)
	}

	if !opts.SkipInitialScan {
		ix.wg.Add(1)
		go func() {
			defer ix.wg.Done()
			count := ix.InitialScan()
			ix.logger.Info().Int("indexed", count).Msg("Initial scan completed")
		}()
	}

	return nil
}

// watchTree registers the root and all existing subdirectories.
func (ix *Indexer) watchTree(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (ix *Indexer) watchLoop(watcher *fsnotify.Watcher) {
	defer ix.wg.Done()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			ix.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ix.logger.Error().Err(err).Msg("File watcher error")
		case <-ix.stopCh:
			return
		}
	}
}

func (ix *Indexer) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				ix.logger.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if !ix.qualifies(event.Name) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		ix.mu.Lock()
		if t, ok := ix.timers[event.Name]; ok {
			t.Stop()
			delete(ix.timers, event.Name)
		}
		delete(ix.hashes, event.Name)
		ix.mu.Unlock()
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		ix.logger.Debug().Str("file", filepath.Base(event.Name)).
			Str("op", event.Op.String()).Msg("File change detected")
		ix.scheduleIndex(event.Name)
	}
}

// scheduleIndex resets the per-path debounce timer, so a burst of writes to
// one file coalesces into a single index run on the settled content.
func (ix *Indexer) scheduleIndex(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.running {
		return
	}
	if t, ok := ix.timers[path]; ok {
		t.Stop()
	}
	ix.timers[path] = time.AfterFunc(ix.debounce, func() {
		ix.mu.Lock()
		delete(ix.timers, path)
		running := ix.running
		ix.mu.Unlock()
		if !running {
			return
		}
		ix.indexFile(path)
	})
}

func (ix *Indexer) pollLoop(interval time.Duration) {
	defer ix.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ix.scanTree()
		case <-ix.stopCh:
			return
		}
	}
}

// InitialScan walks the tree once and indexes every qualifying file,
// returning how many were actually indexed.
func (ix *Indexer) InitialScan() int {
	return ix.scanTree()
}

func (ix *Indexer) scanTree() int {
	count := 0
	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			ix.logger.Debug().Err(err).Str("path", path).Msg("Scan error, skipping")
			return nil
		}
		if d.IsDir() || !ix.qualifies(path) {
			return nil
		}
		if ix.indexFile(path) {
			count++
		}
		return nil
	})
	if err != nil {
		ix.logger.Warn().Err(err).Msg("Tree scan failed")
	}
	return count
}

func (ix *Indexer) qualifies(path string) bool {
	return ix.extensions[strings.ToLower(filepath.Ext(path))]
}

// indexFile reads, hashes and stores one file. Returns false when the file
// was skipped (unchanged, empty, oversized, unreadable) and true when an add
// was attempted against the store. Read errors are swallowed: a file deleted
// mid-operation is simply not indexed.
func (ix *Indexer) indexFile(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		ix.logger.Debug().Err(err).Str("file", path).Msg("Skipping unreadable file")
		return false
	}
	if len(data) == 0 || int64(len(data)) > ix.maxFileSize {
		return false
	}

	content := string(data)
	hash := ContentHash(content)

	ix.mu.Lock()
	if ix.hashes[path] == hash {
		ix.mu.Unlock()
		return false
	}
	ix.hashes[path] = hash
	ix.mu.Unlock()

	rel, err := filepath.Rel(ix.root, path)
	if err != nil {
		rel = path
	}

	ctx := context.Background()
	embedding, err := ix.provider.Embed(ctx, content)
	if err != nil {
		ix.logger.Warn().Err(err).Str("file", rel).Msg("Embedding failed, file not indexed")
		return false
	}

	res, err := ix.store.AddEntry(ctx, AddInput{
		Content:   content,
		EntryType: EntryTypeFact,
		Source:    indexerSource,
		Context:   rel,
		Tags:      []string{rel},
	}, embedding)
	if err != nil {
		ix.logger.Warn().Err(err).Str("file", rel).Msg("Failed to index file")
		return false
	}

	ix.logger.Debug().Str("file", rel).Int64("entry_id", res.ID).
		Bool("duplicate", res.Duplicate).Msg("File indexed")
	return true
}

// Stop cancels the watcher or polling loop and all pending debounce timers.
// Idempotent and safe to call when not running.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if !ix.running {
		ix.mu.Unlock()
		return
	}
	ix.running = false
	close(ix.stopCh)
	if ix.watcher != nil {
		ix.watcher.Close()
		ix.watcher = nil
	}
	for path, t := range ix.timers {
		t.Stop()
		delete(ix.timers, path)
	}
	ix.mu.Unlock()

	ix.wg.Wait()
}

// Running reports whether the indexer is currently watching.
func (ix *Indexer) Running() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.running
}
