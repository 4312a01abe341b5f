package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wmiddendorff/matrioshka-brain-sub001/pkg/memory"
)

var (
	addEntryType  string
	addSource     string
	addContext    string
	addConfidence float64
	addImportance int
	addTags       []string
)

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a new memory entry",
	Long: `Store a new memory entry. Identical content is deduplicated:
re-adding returns the existing entry's id instead of creating a new one.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addEntryType, "type", "", "entry type (fact, preference, event, insight, task, relationship)")
	addCmd.Flags().StringVar(&addSource, "source", "", "where the knowledge came from")
	addCmd.Flags().StringVar(&addContext, "context", "", "free-text situational context")
	addCmd.Flags().Float64Var(&addConfidence, "confidence", -1, "confidence in the knowledge (0-1)")
	addCmd.Flags().IntVar(&addImportance, "importance", -1, "importance ranking (1-10)")
	addCmd.Flags().StringSliceVar(&addTags, "tag", nil, "tag for filtering (repeatable)")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	m, log, err := newManager()
	if err != nil {
		return err
	}
	defer log.Close()
	defer m.Close()

	in := memory.AddInput{
		Content:   args[0],
		EntryType: memory.EntryType(addEntryType),
		Source:    addSource,
		Context:   addContext,
		Tags:      addTags,
	}
	if addConfidence >= 0 {
		in.Confidence = &addConfidence
	}
	if addImportance >= 0 {
		in.Importance = &addImportance
	}

	res, err := m.Add(cmd.Context(), in)
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}

	return printJSON(res)
}
