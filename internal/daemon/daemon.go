package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/wmiddendorff/matrioshka-brain-sub001/internal/config"
	"github.com/wmiddendorff/matrioshka-brain-sub001/internal/logger"
	"github.com/wmiddendorff/matrioshka-brain-sub001/internal/observability"
	"github.com/wmiddendorff/matrioshka-brain-sub001/internal/tracing"
	"github.com/wmiddendorff/matrioshka-brain-sub001/pkg/memory"
	"github.com/wmiddendorff/matrioshka-brain-sub001/pkg/tools"
)

// Daemon is the long-running matrioshka service: the memory manager, its
// auto-indexer, the tool registry, periodic reconciliation and the metrics
// endpoint under one lifecycle.
type Daemon struct {
	config     *config.Config
	logger     zerolog.Logger
	instanceID string

	memoryMgr    *memory.Manager
	toolRegistry *tools.Executor

	cronRunner    *cron.Cron
	metricsServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	zl := log.Zerolog()
	tracingEnabled := false
	if err := tracing.InitOpenTelemetry("matrioshka-daemon"); err != nil {
		zl.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		tracingEnabled = true
		zl.Info().Msg("Tracing initialized successfully")
	}

	d := &Daemon{
		config:         cfg,
		logger:         zl,
		instanceID:     uuid.NewString(),
		ctx:            ctx,
		cancel:         cancel,
		tracingEnabled: tracingEnabled,
	}

	if err := d.initializeModules(); err != nil {
		cancel()
		if d.tracingEnabled {
			_ = tracing.ShutdownOpenTelemetry(context.Background())
			d.tracingEnabled = false
		}
		return nil, fmt.Errorf("failed to initialize modules: %w", err)
	}

	return d, nil
}

func (d *Daemon) initializeModules() error {
	provider := NewEmbeddingProvider(d.config.Embedding)

	memoryMgr, err := memory.NewManager(memory.Config{
		DBPath:        d.config.DBPath(),
		WorkspacePath: d.config.Workspace,
		Logger:        d.logger,
		Provider:      provider,
		VectorWeight:  &d.config.Memory.VectorWeight,
		KeywordWeight: &d.config.Memory.KeywordWeight,
	})
	if err != nil {
		return fmt.Errorf("failed to create memory manager: %w", err)
	}
	d.memoryMgr = memoryMgr
	d.logger.Info().Msg("Memory manager initialized")

	d.toolRegistry = tools.New()
	if err := memory.RegisterMemoryTools(d.toolRegistry, d.memoryMgr); err != nil {
		return fmt.Errorf("failed to register memory tools: %w", err)
	}
	d.logger.Info().Int("tools", d.toolRegistry.Count()).Msg("Tool registry initialized")

	return nil
}

// NewEmbeddingProvider builds a lazily-initialized provider so the daemon can
// start without network access; the first embed call pays the setup cost.
func NewEmbeddingProvider(cfg config.EmbeddingConfig) memory.EmbeddingProvider {
	dimension := cfg.Dimension
	if dimension == 0 {
		switch openai.EmbeddingModel(cfg.Model) {
		case openai.EmbeddingModelTextEmbedding3Large:
			dimension = 3072
		default:
			dimension = 1536
		}
	}

	return memory.NewLazyProvider(dimension, func(ctx context.Context) (memory.EmbeddingProvider, error) {
		return memory.NewOpenAIProvider(memory.OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: dimension,
		})
	})
}

// Start brings up the indexer, the reconcile schedule and the metrics server.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Str("instance_id", d.instanceID).Msg("Starting daemon")

	// Repair any index state left by an earlier crash before serving
	report, err := d.memoryMgr.Reconcile(d.ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Startup reconciliation failed")
	} else {
		observability.RecordReconcileOrphans(report.OrphanVectors)
	}

	if d.config.Workspace != "" {
		opts := memory.IndexerOptions{
			Interval:        time.Duration(d.config.Memory.IndexerIntervalMS) * time.Millisecond,
			SkipInitialScan: d.config.Memory.SkipInitialScan,
		}
		if err := d.memoryMgr.StartIndexer(opts); err != nil {
			return fmt.Errorf("failed to start indexer: %w", err)
		}
		d.logger.Info().Str("workspace", d.config.Workspace).Msg("Auto-indexer started")
	}

	if schedule := d.config.Memory.ReconcileSchedule; schedule != "" {
		d.cronRunner = cron.New()
		if _, err := d.cronRunner.AddFunc(schedule, d.periodicReconcile); err != nil {
			return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
		}
		d.cronRunner.Start()
		d.logger.Info().Str("schedule", schedule).Msg("Periodic reconciliation scheduled")
	}

	if d.config.Metrics.Enabled {
		d.startMetricsServer()
	}

	d.logger.Info().Msg("Daemon started")
	return nil
}

func (d *Daemon) periodicReconcile() {
	report, err := d.memoryMgr.Reconcile(d.ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Periodic reconciliation failed")
		return
	}
	observability.RecordReconcileOrphans(report.OrphanVectors)
}

func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())

	d.metricsServer = &http.Server{
		Addr:    d.config.Metrics.Listen,
		Handler: mux,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info().Str("listen", d.config.Metrics.Listen).Msg("Metrics server listening")
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Stop shuts everything down in reverse start order. Idempotent.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping daemon")

	if d.cronRunner != nil {
		<-d.cronRunner.Stop().Done()
		d.cronRunner = nil
	}

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
		cancel()
		d.metricsServer = nil
	}

	if err := d.memoryMgr.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Memory manager close failed")
	}

	d.cancel()
	d.wg.Wait()

	if d.tracingEnabled {
		if err := tracing.ShutdownOpenTelemetry(context.Background()); err != nil {
			d.logger.Warn().Err(err).Msg("Tracing shutdown failed")
		}
		d.tracingEnabled = false
	}

	d.logger.Info().Msg("Daemon stopped")
}

// Run starts the daemon and blocks until a termination signal arrives.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("Termination signal received")
	case <-d.ctx.Done():
	}

	d.Stop()
	return nil
}

// Status describes the daemon's current state.
type Status struct {
	Running        bool          `json:"running"`
	InstanceID     string        `json:"instance_id"`
	Uptime         time.Duration `json:"uptime"`
	IndexerRunning bool          `json:"indexer_running"`
	Tools          int           `json:"tools"`
}

// Status reports the daemon's runtime state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := Status{
		Running:    d.running,
		InstanceID: d.instanceID,
		Tools:      d.toolRegistry.Count(),
	}
	if d.running {
		st.Uptime = time.Since(d.startTime)
		st.IndexerRunning = d.memoryMgr.IndexerRunning()
	}
	return st
}

// Memory exposes the memory manager for the CLI commands.
func (d *Daemon) Memory() *memory.Manager {
	return d.memoryMgr
}

// Tools exposes the tool registry.
func (d *Daemon) Tools() *tools.Executor {
	return d.toolRegistry
}
