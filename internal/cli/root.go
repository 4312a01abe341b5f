package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wmiddendorff/matrioshka-brain-sub001/internal/config"
	"github.com/wmiddendorff/matrioshka-brain-sub001/internal/daemon"
	"github.com/wmiddendorff/matrioshka-brain-sub001/internal/logger"
	"github.com/wmiddendorff/matrioshka-brain-sub001/pkg/memory"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "matrioshka",
	Short: "Matrioshka - persistent memory for autonomous agents",
	Long: `Matrioshka is a long-lived knowledge store for autonomous agents.
It persists memory entries across restarts and retrieves them through
hybrid semantic and keyword search, with automatic workspace indexing.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.matrioshka/matrioshka.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newDaemon loads config, builds the logger and assembles a daemon instance.
// One-shot commands use the same wiring as the long-running service.
func newDaemon() (*daemon.Daemon, *logger.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		log.Close()
		return nil, nil, err
	}

	return d, log, nil
}

// newManager builds a standalone memory manager for one-shot commands that
// do not need the full daemon lifecycle.
func newManager() (*memory.Manager, *logger.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: false,
		Pretty:  false,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	m, err := memory.NewManager(memory.Config{
		DBPath:        cfg.DBPath(),
		WorkspacePath: cfg.Workspace,
		Logger:        log.Zerolog(),
		Provider:      daemon.NewEmbeddingProvider(cfg.Embedding),
		VectorWeight:  &cfg.Memory.VectorWeight,
		KeywordWeight: &cfg.Memory.KeywordWeight,
	})
	if err != nil {
		log.Close()
		return nil, nil, err
	}

	return m, log, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
