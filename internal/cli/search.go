package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pdfrag/internal/app"
)

var (
	searchText string
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search indexed chunks without generating an answer",
	Long: `Embed the query and list the nearest chunks with their scores.

Examples:
  rag search -q "termination clause"
  rag search -q "warranty period" --top-k 10 --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c := *GetConfig()
	if searchTopK > 0 {
		c.Retrieve.TopK = searchTopK
	}
	a, err := app.New(ctx, &c, GetRootDir())
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Answerer.Retrieve(ctx, searchText)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	results := toAskSources(entries)

	if searchJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), searchText)
	for i, r := range results {
		loc := r.Source
		if r.Page != "" {
			loc += " p." + r.Page
		}
		fmt.Printf("--- [%d] %s (score: %.3f) ---\n", i+1, loc, r.Score)
		text := []rune(r.Text)
		if len(text) > 500 {
			text = append(text[:500], []rune("...")...)
		}
		fmt.Println(string(text))
		fmt.Println()
	}
	return nil
}
