package config

import (
	"fmt"
)

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks a loaded configuration for contradictions
func Validate(cfg *Config) error {
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level %q", cfg.Logging.Level)
	}

	if cfg.Memory.VectorWeight < 0 || cfg.Memory.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be in [0,1], got %v", cfg.Memory.VectorWeight)
	}
	if cfg.Memory.KeywordWeight < 0 || cfg.Memory.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be in [0,1], got %v", cfg.Memory.KeywordWeight)
	}

	switch cfg.Embedding.Provider {
	case "openai":
	default:
		return fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	if cfg.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding dimension must be non-negative, got %d", cfg.Embedding.Dimension)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics enabled but no listen address configured")
	}

	return nil
}
