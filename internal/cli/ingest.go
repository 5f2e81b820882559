package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pdfrag/internal/app"
	"pdfrag/internal/usecase"
)

var (
	ingestReset bool
	ingestQuiet bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Index the PDFs in a directory",
	Long: `Load every PDF directly inside the directory, split it into chunks,
embed them and store them in the vector index.

Examples:
  rag ingest              # Index the configured PDF directory (./pdfs)
  rag ingest ./manuals    # Index a specific directory
  rag ingest --reset      # Drop the collection before indexing`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "clear the collection before ingesting")
	ingestCmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false, "do not show progress bars")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.PDFDir()
	if len(args) > 0 {
		dir, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	if ingestReset {
		fmt.Println("Clearing existing index...")
		if err := a.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	if !ingestQuiet {
		a.Ingestor.OnProgress(newProgressReporter())
	}

	fmt.Printf("Scanning %s...\n", dir)
	start := time.Now()
	result, err := a.Ingestor.IngestDirectory(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if result.NoDocuments {
		fmt.Println("\nNo documents to index.")
		return nil
	}

	fmt.Printf("\nIngestion complete in %s:\n", formatDuration(time.Since(start)))
	fmt.Printf("  PDF files:  %d\n", result.Files)
	fmt.Printf("  Pages:      %d\n", result.Documents)
	fmt.Printf("  Chunks:     %d\n", result.Chunks)
	if len(result.Skipped) > 0 {
		fmt.Printf("\nSkipped:\n")
		for _, s := range result.Skipped {
			fmt.Printf("  - %s: %s\n", s.Path, s.Error)
		}
	}

	fmt.Printf("\nIndex: %s\n", a.Describe())
	return nil
}

// newProgressReporter returns a ProgressFunc that draws one bar per stage.
func newProgressReporter() usecase.ProgressFunc {
	var (
		mu        sync.Mutex
		bar       *progressbar.ProgressBar
		current   string
		startTime time.Time
	)

	return func(stage string, done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if stage != current || bar == nil {
			if bar != nil {
				bar.Finish()
			}
			current = stage
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(stageLabel(stage)),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(done)

		if done > 0 && done < total {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("%s ETA: %s", stageLabel(stage), formatDuration(eta)))
			}
		}
	}
}

func stageLabel(stage string) string {
	switch stage {
	case usecase.StageLoad:
		return "[cyan]Loading[reset]"
	case usecase.StageEmbed:
		return "[cyan]Embedding[reset]"
	case usecase.StageStore:
		return "[cyan]Storing[reset]"
	}
	return "[cyan]" + stage + "[reset]"
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
