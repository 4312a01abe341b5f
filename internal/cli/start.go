package cli

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the matrioshka daemon service",
	Long: `Start the matrioshka daemon service in the foreground.
The daemon watches the workspace for file changes, serves the memory tools
and runs periodic index reconciliation until terminated.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	d, log, err := newDaemon()
	if err != nil {
		return err
	}
	defer log.Close()

	return d.Run()
}
