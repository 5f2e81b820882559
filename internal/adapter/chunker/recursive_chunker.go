package chunker

import (
	"strings"

	"pdfrag/internal/domain"
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word.
// When none fits, the chunk is cut at the character limit.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// RecursiveChunker splits text into windows of at most size runes where
// consecutive windows of the same document share exactly overlap runes.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators [][]rune
}

type span struct {
	start, end int
}

// NewRecursiveChunker validates the parameters and builds a chunker.
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, domain.Errorf(domain.KindConfig, "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, domain.Errorf(domain.KindConfig, "chunk overlap must be in [0, %d), got %d", size, overlap)
	}

	seps := make([][]rune, len(DefaultSeparators))
	for i, s := range DefaultSeparators {
		seps[i] = []rune(s)
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: seps}, nil
}

// Split chunks every document in order. Chunks carry a copy of their
// document's metadata plus their index within the document.
func (c *RecursiveChunker) Split(docs []domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, doc := range docs {
		text := []rune(doc.Text)
		for i, sp := range c.spans(text) {
			meta := make(map[string]any, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["chunk"] = i

			chunks = append(chunks, domain.Chunk{
				Text:     string(text[sp.start:sp.end]),
				Index:    i,
				Start:    sp.start,
				Metadata: meta,
			})
		}
	}
	return chunks, nil
}

func (c *RecursiveChunker) spans(text []rune) []span {
	if strings.TrimSpace(string(text)) == "" {
		return nil
	}

	var out []span
	start := 0
	for {
		if len(text)-start <= c.size {
			out = append(out, span{start, len(text)})
			return out
		}
		end := c.cut(text, start)
		out = append(out, span{start, end})
		// end > start+overlap, so this always advances
		start = end - c.overlap
	}
}

// cut picks the end of the chunk starting at start. The cut lands after the
// last occurrence of the highest-priority separator in the back half of the
// window, and always beyond start+overlap.
func (c *RecursiveChunker) cut(text []rune, start int) int {
	hi := start + c.size
	lo := start + c.size/2
	if lo < start+c.overlap {
		lo = start + c.overlap
	}

	for _, sep := range c.separators {
		for p := hi; p > lo; p-- {
			if p-len(sep) < start {
				break
			}
			if hasSuffixAt(text, p, sep) {
				return p
			}
		}
	}
	return hi
}

func hasSuffixAt(text []rune, p int, sep []rune) bool {
	for i := range sep {
		if text[p-len(sep)+i] != sep[i] {
			return false
		}
	}
	return true
}
