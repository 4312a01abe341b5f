package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a memory entry",
	Long:  `Delete a memory entry and all its index traces by id.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}

func runForget(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid entry id %q", args[0])
	}

	m, log, err := newManager()
	if err != nil {
		return err
	}
	defer log.Close()
	defer m.Close()

	deleted, err := m.Delete(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	if !deleted {
		fmt.Printf("no entry with id %d\n", id)
		return nil
	}
	fmt.Printf("entry %d deleted\n", id)
	return nil
}
