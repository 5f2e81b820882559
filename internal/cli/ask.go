package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pdfrag/internal/app"
	"pdfrag/internal/domain"
)

var (
	askTopK       int
	askJSON       bool
	askSources    bool
	askShowPrompt bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed PDFs",
	Long: `Embed the question, retrieve the nearest chunks and ask the language
model to answer from them.

Examples:
  rag ask "What is the refund policy?"
  rag ask --sources --top-k 8 "Who signed the contract?"
  rag ask --show-prompt "What color is the sky?"   # print the prompt, skip generation`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "list the retrieved chunks")
	askCmd.Flags().BoolVar(&askShowPrompt, "show-prompt", false, "print the prompt instead of calling the language model")
	rootCmd.AddCommand(askCmd)
}

type askSource struct {
	Source string  `json:"source"`
	Page   string  `json:"page,omitempty"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

type askOutput struct {
	Question string      `json:"question"`
	Answer   string      `json:"answer,omitempty"`
	Prompt   string      `json:"prompt,omitempty"`
	Sources  []askSource `json:"sources"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	c := *GetConfig()
	if askTopK > 0 {
		c.Retrieve.TopK = askTopK
	}
	a, err := app.New(ctx, &c, GetRootDir())
	if err != nil {
		return err
	}
	defer a.Close()

	out := askOutput{Question: question}
	var results []domain.ScoredEntry
	if askShowPrompt {
		out.Prompt, results, err = a.Answerer.Prompt(ctx, question)
	} else {
		var ans *domain.Answer
		ans, err = a.Answerer.Answer(ctx, question)
		if ans != nil {
			out.Answer = ans.Text
			results = ans.Sources
		}
	}
	if err != nil {
		return err
	}
	out.Sources = toAskSources(results)

	if askJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if askShowPrompt {
		fmt.Println(out.Prompt)
	} else {
		fmt.Println(out.Answer)
	}
	if askSources {
		if len(out.Sources) == 0 {
			fmt.Println("\nNo sources found.")
			return nil
		}
		fmt.Printf("\nSources:\n")
		for i, s := range out.Sources {
			loc := s.Source
			if s.Page != "" {
				loc += " p." + s.Page
			}
			fmt.Printf("  %d. %s (score %.3f)\n", i+1, loc, s.Score)
			fmt.Printf("     %s\n", preview(s.Text, 100))
		}
	}
	return nil
}

func toAskSources(results []domain.ScoredEntry) []askSource {
	out := make([]askSource, len(results))
	for i, r := range results {
		out[i] = askSource{
			Source: r.Entry.Metadata["source"],
			Page:   r.Entry.Metadata["page"],
			Score:  r.Score,
			Text:   r.Entry.Text,
		}
	}
	return out
}

// preview returns the first n runes of text on one line.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
