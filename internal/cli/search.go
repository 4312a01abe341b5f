package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wmiddendorff/matrioshka-brain-sub001/pkg/memory"
)

var (
	searchMode          string
	searchLimit         int
	searchTypes         []string
	searchMinImportance int
	searchMinConfidence float64
	searchTags          []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memory entries",
	Long: `Search memory entries using hybrid vector and keyword retrieval.
Results are ranked by fused relevance score.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "hybrid", "search mode (hybrid, vector, keyword)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results")
	searchCmd.Flags().StringSliceVar(&searchTypes, "type", nil, "restrict to entry type (repeatable)")
	searchCmd.Flags().IntVar(&searchMinImportance, "min-importance", 0, "minimum importance threshold")
	searchCmd.Flags().Float64Var(&searchMinConfidence, "min-confidence", 0, "minimum confidence threshold")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "require at least one of these tags (repeatable)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	m, log, err := newManager()
	if err != nil {
		return err
	}
	defer log.Close()
	defer m.Close()

	types := make([]memory.EntryType, 0, len(searchTypes))
	for _, t := range searchTypes {
		types = append(types, memory.EntryType(t))
	}

	opts := memory.SearchOptions{
		Query:         args[0],
		Mode:          memory.SearchMode(searchMode),
		EntryTypes:    types,
		MinImportance: searchMinImportance,
		MinConfidence: searchMinConfidence,
		Tags:          searchTags,
	}
	if cmd.Flags().Changed("limit") {
		opts.Limit = &searchLimit
	}

	results, err := m.Search(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	return printJSON(results)
}
