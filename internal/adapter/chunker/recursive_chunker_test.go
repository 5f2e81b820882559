package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"pdfrag/internal/domain"
)

// corpus builds deterministic prose of roughly n runes with sentence and
// paragraph breaks.
func corpus(n int) string {
	words := []string{"vector", "index", "the", "sky", "is", "blue", "pdf", "chunk", "überblick", "retrieval", "model", "answer"}
	var sb strings.Builder
	i := 0
	for utf8.RuneCountInString(sb.String()) < n {
		sb.WriteString(words[i%len(words)])
		i++
		switch {
		case i%53 == 0:
			sb.WriteString(".\n\n")
		case i%11 == 0:
			sb.WriteString(". ")
		default:
			sb.WriteString(" ")
		}
	}
	return string([]rune(sb.String())[:n])
}

func TestRecursiveChunkerRejectsBadParams(t *testing.T) {
	cases := [][2]int{{100, 100}, {100, 150}, {0, 0}, {100, -1}}
	for _, c := range cases {
		_, err := NewRecursiveChunker(c[0], c[1])
		if !errors.Is(err, domain.ErrConfig) {
			t.Errorf("size=%d overlap=%d: expected ConfigError, got %v", c[0], c[1], err)
		}
	}
}

func TestRecursiveChunkerOverlapProperty(t *testing.T) {
	text := corpus(5000)
	params := [][2]int{{1000, 200}, {100, 0}, {50, 49}, {300, 10}, {7, 3}, {1, 0}}

	for _, p := range params {
		t.Run(fmt.Sprintf("size%d_overlap%d", p[0], p[1]), func(t *testing.T) {
			c, err := NewRecursiveChunker(p[0], p[1])
			if err != nil {
				t.Fatal(err)
			}
			chunks, err := c.Split([]domain.Document{{Text: text}})
			if err != nil {
				t.Fatal(err)
			}
			if len(chunks) == 0 {
				t.Fatal("expected chunks")
			}

			for i, ch := range chunks {
				if n := utf8.RuneCountInString(ch.Text); n > p[0] {
					t.Errorf("chunk %d has %d runes, limit %d", i, n, p[0])
				}
				if i == 0 {
					continue
				}
				prev := []rune(chunks[i-1].Text)
				cur := []rune(ch.Text)
				tail := string(prev[len(prev)-p[1]:])
				head := string(cur[:p[1]])
				if tail != head {
					t.Errorf("chunk %d: tail %q != head %q", i, tail, head)
				}
			}

			// chunks reassemble into the original text
			var sb strings.Builder
			for i, ch := range chunks {
				r := []rune(ch.Text)
				if i > 0 {
					r = r[p[1]:]
				}
				sb.WriteString(string(r))
			}
			if sb.String() != text {
				t.Error("chunks do not reassemble into the source text")
			}
		})
	}
}

func TestRecursiveChunkerDeterministic(t *testing.T) {
	c, _ := NewRecursiveChunker(300, 40)
	docs := []domain.Document{{Text: corpus(2000)}, {Text: corpus(900)}}

	a, _ := c.Split(docs)
	b, _ := c.Split(docs)
	if len(a) != len(b) {
		t.Fatalf("chunk count differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Text != b[i].Text || a[i].Start != b[i].Start {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestRecursiveChunkerPrefersParagraphs(t *testing.T) {
	para := strings.Repeat("a", 60)
	text := para + "\n\n" + para + "\n\n" + para
	c, _ := NewRecursiveChunker(100, 0)

	chunks, _ := c.Split([]domain.Document{{Text: text}})
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != para+"\n\n" {
		t.Errorf("expected first chunk to end at paragraph break, got %q", chunks[0].Text)
	}
}

func TestRecursiveChunkerScenario(t *testing.T) {
	c, _ := NewRecursiveChunker(1000, 200)

	// one 2500-rune document
	chunks, _ := c.Split([]domain.Document{{Text: corpus(2500)}})
	if len(chunks) < 3 || len(chunks) > 4 {
		t.Errorf("expected 3-4 chunks, got %d", len(chunks))
	}

	// three pages summing to 2500 runes
	pages := []domain.Document{
		{Text: corpus(900), Metadata: map[string]any{"source": "a.pdf", "page": 1}},
		{Text: corpus(800), Metadata: map[string]any{"source": "a.pdf", "page": 2}},
		{Text: corpus(800), Metadata: map[string]any{"source": "a.pdf", "page": 3}},
	}
	chunks, _ = c.Split(pages)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Metadata["page"] != i+1 {
			t.Errorf("chunk %d: expected page %d, got %v", i, i+1, ch.Metadata["page"])
		}
		if ch.Metadata["chunk"] != 0 {
			t.Errorf("chunk %d: expected chunk index 0, got %v", i, ch.Metadata["chunk"])
		}
	}
}

func TestRecursiveChunkerSkipsBlankDocuments(t *testing.T) {
	c, _ := NewRecursiveChunker(100, 10)
	chunks, err := c.Split([]domain.Document{{Text: "  \n\n\t "}, {Text: "the sky is blue"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "the sky is blue" {
		t.Errorf("unexpected chunk %q", chunks[0].Text)
	}
}
