package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pdfrag/internal/app"
	"pdfrag/internal/usecase"
)

var storeSource string

var storeCmd = &cobra.Command{
	Use:   "store [text]",
	Short: "Add a piece of text to the knowledge base",
	Long: `Chunk, embed and store free text so later questions can use it.
With no arguments the text is read from standard input.

Examples:
  rag store "The office closes at 6pm on Fridays."
  cat notes.txt | rag store --source notes`,
	RunE: runStore,
}

func init() {
	storeCmd.Flags().StringVar(&storeSource, "source", usecase.ChatSource, "source label stored with the text")
	rootCmd.AddCommand(storeCmd)
}

func runStore(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Ingestor.IngestText(ctx, text, storeSource)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d chunks)\n", usecase.StoredMessage, result.Chunks)
	return nil
}
