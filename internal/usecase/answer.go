package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

// Stage is a step of answering one question.
type Stage int

const (
	StageReceived Stage = iota
	StageEmbeddingQuery
	StageRetrieving
	StageAssemblingContext
	StageGenerating
	StageCompleted
	StageErrored
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageEmbeddingQuery:
		return "embedding_query"
	case StageRetrieving:
		return "retrieving"
	case StageAssemblingContext:
		return "assembling_context"
	case StageGenerating:
		return "generating"
	case StageCompleted:
		return "completed"
	case StageErrored:
		return "errored"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError is a failure while answering, tagged with the stage it
// happened in. The wrapped error carries the domain kind.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return "answer: " + e.Stage.String() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

type AnswerOptions struct {
	TopK int
	// MinScore drops results scoring below it; 0 disables the filter.
	MinScore float64
	// Reranker, when set, picks TopK of FetchK nearest candidates.
	Reranker port.DiversityReranker
	FetchK   int
}

// Answerer runs the retrieval-generation pipeline.
type Answerer struct {
	embedder port.Embedder
	index    port.VectorIndex
	llm      port.LLM
	opts     AnswerOptions
	observer func(Stage)
}

func NewAnswerer(embedder port.Embedder, index port.VectorIndex, llm port.LLM, opts AnswerOptions) *Answerer {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.FetchK < opts.TopK {
		opts.FetchK = 2 * opts.TopK
	}
	return &Answerer{
		embedder: embedder,
		index:    index,
		llm:      llm,
		opts:     opts,
	}
}

// OnStage registers fn to be called on every stage transition.
func (a *Answerer) OnStage(fn func(Stage)) {
	a.observer = fn
}

func (a *Answerer) enter(s Stage) {
	slog.Debug("answer stage", "stage", s.String())
	if a.observer != nil {
		a.observer(s)
	}
}

func (a *Answerer) fail(s Stage, err error) error {
	a.enter(StageErrored)
	return &StageError{Stage: s, Err: err}
}

// Answer answers question from the indexed documents.
func (a *Answerer) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	q, results, contextText, err := a.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	a.enter(StageGenerating)
	prompt, err := RenderPrompt(q, contextText)
	if err != nil {
		return nil, a.fail(StageGenerating, domain.E(domain.KindGeneration, "render prompt", err))
	}
	out, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.fail(StageGenerating, tag(domain.KindGeneration, "generate", err))
	}

	a.enter(StageCompleted)
	slog.Info("answered question", "results", len(results), "model", a.llm.ModelName())
	return &domain.Answer{
		Question: q,
		Text:     strings.TrimSpace(out),
		Context:  contextText,
		Sources:  results,
	}, nil
}

// Prompt runs retrieval and returns the prompt that Answer would send to
// the language model, without generating.
func (a *Answerer) Prompt(ctx context.Context, question string) (string, []domain.ScoredEntry, error) {
	q, results, contextText, err := a.retrieve(ctx, question)
	if err != nil {
		return "", nil, err
	}
	prompt, err := RenderPrompt(q, contextText)
	if err != nil {
		return "", nil, domain.E(domain.KindGeneration, "render prompt", err)
	}
	return prompt, results, nil
}

// Retrieve returns the entries Answer would use as context for question.
func (a *Answerer) Retrieve(ctx context.Context, question string) ([]domain.ScoredEntry, error) {
	_, results, _, err := a.retrieve(ctx, question)
	return results, err
}

func (a *Answerer) retrieve(ctx context.Context, question string) (string, []domain.ScoredEntry, string, error) {
	a.enter(StageReceived)
	q := strings.TrimSpace(question)
	if q == "" {
		return "", nil, "", a.fail(StageReceived, domain.Errorf(domain.KindValidation, "question is empty"))
	}

	a.enter(StageEmbeddingQuery)
	vector, err := a.embedder.EmbedQuery(ctx, q)
	if err != nil {
		return "", nil, "", a.fail(StageEmbeddingQuery, tag(domain.KindEmbedding, "embed query", err))
	}
	if err := domain.ValidateVector(vector, a.index.Dimension()); err != nil {
		return "", nil, "", a.fail(StageEmbeddingQuery, domain.E(domain.KindEmbedding, "embed query", err))
	}

	a.enter(StageRetrieving)
	k := a.opts.TopK
	if a.opts.Reranker != nil {
		k = a.opts.FetchK
	}
	results, err := a.index.Query(ctx, vector, k)
	if err != nil {
		return "", nil, "", a.fail(StageRetrieving, tag(domain.KindStorage, "query index", err))
	}
	if a.opts.MinScore > 0 {
		results = filterByScore(results, a.opts.MinScore)
	}
	if a.opts.Reranker != nil {
		results = a.opts.Reranker.Rerank(results, a.opts.TopK)
	}
	slog.Debug("retrieved context", "results", len(results), "k", k)

	a.enter(StageAssemblingContext)
	return q, results, BuildContext(results), nil
}

func filterByScore(results []domain.ScoredEntry, threshold float64) []domain.ScoredEntry {
	filtered := make([]domain.ScoredEntry, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
