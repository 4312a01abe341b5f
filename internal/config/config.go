package config

import (
	"path/filepath"
)

// Config is the top-level process configuration
type Config struct {
	DataDir   string          `json:"data_dir" mapstructure:"data_dir"`
	Workspace string          `json:"workspace" mapstructure:"workspace"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // currently "openai"
	Model     string `json:"model" mapstructure:"model"`
	APIKey    string `json:"api_key" mapstructure:"api_key"` // falls back to OPENAI_API_KEY
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	Dimension int    `json:"dimension" mapstructure:"dimension"`
}

// MemoryConfig tunes the store and indexer
type MemoryConfig struct {
	// VectorWeight and KeywordWeight are the default hybrid fusion weights
	// for searches that do not specify their own.
	VectorWeight      float64 `json:"vector_weight" mapstructure:"vector_weight"`
	KeywordWeight     float64 `json:"keyword_weight" mapstructure:"keyword_weight"`
	IndexerIntervalMS int     `json:"indexer_interval_ms" mapstructure:"indexer_interval_ms"`
	SkipInitialScan   bool    `json:"skip_initial_scan" mapstructure:"skip_initial_scan"`
	// ReconcileSchedule is a cron expression for the periodic orphan-repair
	// pass. Empty disables the periodic run (the startup pass always runs).
	ReconcileSchedule string `json:"reconcile_schedule" mapstructure:"reconcile_schedule"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Memory: MemoryConfig{
			VectorWeight:      0.7,
			KeywordWeight:     0.3,
			ReconcileSchedule: "@hourly",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9180",
		},
	}
}

// DBPath returns the memory database location under the data directory
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "memory.db")
}
