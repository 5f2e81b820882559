package usecase

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"pdfrag/internal/domain"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

const (
	// ContextSeparator joins retrieved texts into the prompt context.
	ContextSeparator = "\n\n---\n\n"
	// NoContextMarker stands in for the context when retrieval finds nothing.
	NoContextMarker = "No relevant context found in the documents for this question."
	// RefusalMessage is what the model is told to say when the context
	// cannot answer the question.
	RefusalMessage = "I don't have enough information to answer that question based on the provided documents."
)

var answerTemplate = template.Must(
	template.New("answer_prompt.txt").ParseFS(promptTemplates, "templates/answer_prompt.txt"),
)

type PromptData struct {
	Question string
	Context  string
	Refusal  string
}

// BuildContext joins result texts nearest first, or returns the
// no-context marker for an empty result.
func BuildContext(results []domain.ScoredEntry) string {
	if len(results) == 0 {
		return NoContextMarker
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Entry.Text
	}
	return strings.Join(texts, ContextSeparator)
}

// RenderPrompt fills the answer template.
func RenderPrompt(question, context string) (string, error) {
	var buf bytes.Buffer
	err := answerTemplate.Execute(&buf, PromptData{
		Question: question,
		Context:  context,
		Refusal:  RefusalMessage,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}
