package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search archived session lines",
	Long: `Search the lines of every archived run by semantic similarity.

Results are ranked by cosine similarity over the deterministic line
embeddings the archive maintains, so the same query against the same
archive always returns the same ranking.

Examples:
  heartwood search "lantern"
  heartwood search "the bridge collapses" --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return runSearch(args[0], limit)
	},
}

func init() {
	searchCmd.Flags().Int("limit", 10, "Maximum results")
}

func runSearch(query string, limit int) error {
	if limit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	hits, err := st.SearchLines(context.Background(), query, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("No matching lines.")
		return nil
	}

	for i, hit := range hits {
		fmt.Printf("%d. [%.3f] %s line %d (%s)\n", i+1, hit.Score, hit.Session, hit.LineIndex, hit.RunID)
		if hit.Author != "" {
			fmt.Printf("   %s: %s\n", hit.Author, hit.Content)
		} else {
			fmt.Printf("   %s\n", hit.Content)
		}
	}
	return nil
}
