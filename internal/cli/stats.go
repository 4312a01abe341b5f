package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory store statistics",
	Long:  `Show store-wide statistics: entry counts, averages and access totals.`,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	m, log, err := newManager()
	if err != nil {
		return err
	}
	defer log.Close()
	defer m.Close()

	stats, err := m.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	return printJSON(stats)
}
