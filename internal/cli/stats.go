package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pdfrag/internal/adapter/store"
	"pdfrag/internal/app"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector index statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

type statsOutput struct {
	Backend       string `json:"backend"`
	Location      string `json:"location"`
	Entries       int    `json:"entries"`
	Dimension     int    `json:"dimension"`
	Metric        string `json:"metric"`
	Embedder      string `json:"embedder"`
	LLM           string `json:"llm"`
	SchemaVersion int    `json:"schema_version,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Index.Count(ctx)
	if err != nil {
		return err
	}
	out := statsOutput{
		Backend:   a.Config.Index.Backend,
		Location:  a.Describe(),
		Entries:   n,
		Dimension: a.Index.Dimension(),
		Metric:    string(a.Index.Metric()),
		Embedder:  a.Embedder.ModelName(),
		LLM:       a.LLM.ModelName(),
	}
	if bs, ok := a.Index.(*store.BoltVectorStore); ok {
		info, err := bs.Info()
		if err != nil {
			return err
		}
		out.SchemaVersion = info.Version
		out.CreatedAt = info.CreatedAt.Format(time.RFC3339)
	}

	if statsJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Index:      %s\n", out.Location)
	fmt.Printf("Entries:    %d\n", out.Entries)
	fmt.Printf("Dimension:  %d\n", out.Dimension)
	fmt.Printf("Metric:     %s\n", out.Metric)
	if out.SchemaVersion > 0 {
		fmt.Printf("Schema:     v%d (created %s)\n", out.SchemaVersion, out.CreatedAt)
	}
	fmt.Printf("Embedder:   %s\n", out.Embedder)
	fmt.Printf("LLM:        %s\n", out.LLM)
	return nil
}
