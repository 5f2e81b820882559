// Package loader extracts page text from PDF files.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"pdfrag/internal/domain"
)

// PDFLoader turns a PDF into one Document per page with extractable text.
type PDFLoader struct {
	now func() time.Time
}

func NewPDFLoader() *PDFLoader {
	return &PDFLoader{now: time.Now}
}

// Load reads the PDF at path. Pages without text are skipped.
func (l *PDFLoader) Load(ctx context.Context, path string) (docs []domain.Document, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, domain.E(domain.KindLoad, path, statErr)
	}

	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = domain.E(domain.KindLoad, path, fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, domain.E(domain.KindLoad, path, err)
	}
	defer f.Close()

	total := r.NumPage()
	ingestedAt := l.now()
	source := filepath.Clean(path)

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, domain.E(domain.KindLoad, fmt.Sprintf("%s page %d", path, i), err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		docs = append(docs, domain.Document{
			Text: text,
			Metadata: map[string]any{
				"source":      source,
				"page":        i,
				"total_pages": total,
			},
			IngestedAt: ingestedAt,
		})
	}

	return docs, nil
}
