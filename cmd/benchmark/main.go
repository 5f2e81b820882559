package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdfrag/config"
	"pdfrag/internal/app"
)

func main() {
	projectDir := flag.String("dir", ".", "Project directory holding rag.yaml and the index")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	repeat := flag.Int("n", 3, "Times to run the query (later runs hit the query cache)")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./project -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Embedding and index setup (model, backend, entry count)")
		fmt.Println("  2. Semantic similarity of the top matches")
		fmt.Println("  3. Retrieval latency, cold and cached")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Retrieve.TopK = *topK
	cfg.Retrieve.MinScore = 0
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, *projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	count, err := a.Index.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error counting entries: %v\n", err)
		os.Exit(1)
	}
	if count == 0 {
		fmt.Fprintln(os.Stderr, "Index is empty - run 'rag ingest' first")
		os.Exit(1)
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Index:      %s\n", a.Describe())
	fmt.Printf("Entries:    %d\n", count)
	fmt.Printf("Model:      %s (%s)\n", a.Embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension:  %d (%s)\n", a.Index.Dimension(), a.Index.Metric())
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	var latencies []time.Duration
	start := time.Now()
	entries, err := a.Answerer.Retrieve(ctx, *query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	latencies = append(latencies, time.Since(start))
	for i := 1; i < *repeat; i++ {
		start := time.Now()
		if _, err := a.Answerer.Retrieve(ctx, *query); err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
	}

	if len(entries) == 0 {
		fmt.Println("No matches.")
		return
	}

	fmt.Printf("Top %d semantic matches:\n\n", len(entries))

	totalScore := 0.0
	for i, r := range entries {
		preview := []rune(strings.Join(strings.Fields(r.Entry.Text), " "))
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}

		similarity := r.Score
		totalScore += similarity

		rating := "LOW"
		if similarity > 0.7 {
			rating = "HIGH"
		} else if similarity > 0.5 {
			rating = "GOOD"
		} else if similarity > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s\n", i+1, rating, similarity, location(r.Entry.Metadata))
		fmt.Printf("   %s\n\n", string(preview))
	}

	avgScore := totalScore / float64(len(entries))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", entries[0].Score)

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - semantic search working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need better embeddings or re-ingestion")
	}

	fmt.Printf("\nLATENCY:\n")
	fmt.Printf("  Cold:   %s\n", latencies[0].Round(time.Microsecond))
	if len(latencies) > 1 {
		var warm time.Duration
		for _, d := range latencies[1:] {
			warm += d
		}
		fmt.Printf("  Warm:   %s (avg of %d)\n", (warm / time.Duration(len(latencies)-1)).Round(time.Microsecond), len(latencies)-1)
	}
}

func location(meta map[string]string) string {
	src := filepath.Base(meta["source"])
	if page, ok := meta["page"]; ok {
		return src + " p." + page
	}
	return src
}
