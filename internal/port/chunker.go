package port

import "pdfrag/internal/domain"

type Chunker interface {
	Split(docs []domain.Document) ([]domain.Chunk, error)
}
