//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"pdfrag/internal/adapter/chunker"
	"pdfrag/internal/adapter/embedding"
	"pdfrag/internal/adapter/memstore"
	"pdfrag/internal/domain"
	"pdfrag/internal/usecase"
)

const dimension = 256

var (
	embedder = embedding.NewHashEmbedder(dimension)
	store    *memstore.MemoryStore
	ingestor *usecase.Ingestor
	answerer *usecase.Answerer
)

func init() {
	reset()
}

// reset replaces the index and the pipelines reading from it.
func reset() {
	chk, err := chunker.NewRecursiveChunker(1000, 200)
	if err != nil {
		panic(err)
	}
	store = memstore.NewMemoryStore(dimension, domain.MetricCosine)
	ingestor = usecase.NewIngestor(nil, chk, embedder, store, usecase.IngestOptions{Dedup: true})
	answerer = usecase.NewAnswerer(embedder, store, nil, usecase.AnswerOptions{TopK: 5})
}

func main() {
	c := make(chan struct{})

	js.Global().Set("ragIndex", js.FuncOf(indexContent))
	js.Global().Set("ragQuery", js.FuncOf(queryContent))
	js.Global().Set("ragPrompt", js.FuncOf(promptContent))
	js.Global().Set("ragClear", js.FuncOf(clearIndex))
	js.Global().Set("ragStats", js.FuncOf(getStats))

	<-c
}

func indexContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: ragIndex(source, text)")
	}

	source := args[0].String()
	text := args[1].String()

	result, err := ingestor.IngestText(context.Background(), text, source)
	if err != nil {
		return makeError("indexing failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"success": true,
		"chunks":  result.Chunks,
		"source":  source,
	})
}

func queryContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: ragQuery(query)")
	}

	query := args[0].String()
	results, err := answerer.Retrieve(context.Background(), query)
	if err != nil {
		return makeError("search failed: " + err.Error())
	}

	output := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		output = append(output, map[string]interface{}{
			"source": r.Entry.Metadata["source"],
			"score":  r.Score,
			"text":   r.Entry.Text,
		})
	}

	return makeResult(map[string]interface{}{
		"results": output,
		"query":   query,
	})
}

// promptContent returns the prompt a language model would be given, so the
// page can forward it to a model of its choice.
func promptContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: ragPrompt(question)")
	}

	prompt, results, err := answerer.Prompt(context.Background(), args[0].String())
	if err != nil {
		return makeError("prompt failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"prompt":  prompt,
		"sources": len(results),
	})
}

func clearIndex(this js.Value, args []js.Value) interface{} {
	reset()
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	entries := store.Entries()

	seen := make(map[string]bool)
	var sources []string
	for _, e := range entries {
		src := e.Metadata["source"]
		if !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}

	return makeResult(map[string]interface{}{
		"totalEntries": len(entries),
		"dimension":    dimension,
		"sources":      sources,
	})
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
