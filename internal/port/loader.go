package port

import (
	"context"

	"pdfrag/internal/domain"
)

// Loader extracts documents from a file on disk.
type Loader interface {
	Load(ctx context.Context, path string) ([]domain.Document, error)
}
