// Package httpapi exposes the chat and upload entry points over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pdfrag/internal/adapter/fs"
	"pdfrag/internal/domain"
	"pdfrag/internal/usecase"
)

// UploadField is the multipart field carrying uploaded PDFs.
const UploadField = "pdfs"

type ChatHandler interface {
	Handle(ctx context.Context, input string) (*usecase.ChatReply, error)
}

type DirectoryIngester interface {
	IngestDirectory(ctx context.Context, dir string) (*usecase.IngestResult, error)
}

type EntryCounter interface {
	Count(ctx context.Context) (int, error)
}

type Config struct {
	PDFDir         string
	MaxUploadBytes int64
}

type Server struct {
	chat     ChatHandler
	ingester DirectoryIngester
	index    EntryCounter
	cfg      Config
}

func NewServer(chat ChatHandler, ingester DirectoryIngester, index EntryCounter, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	return &Server{chat: chat, ingester: ingester, index: index, cfg: cfg}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	api := router.Group("/api")
	{
		api.POST("/chat", s.handleChat)
		api.POST("/upload", s.handleUpload)
	}
	router.GET("/healthz", s.handleHealth)
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type chatRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.E(domain.KindValidation, "decode request", err))
		return
	}

	reply, err := s.chat.Handle(c.Request.Context(), req.Question)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type uploadResponse struct {
	Message string                `json:"message"`
	Files   []string              `json:"files"`
	Result  *usecase.IngestResult `json:"result,omitempty"`
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "Upload too large", Details: err.Error()})
			return
		}
		writeError(c, domain.E(domain.KindValidation, "parse upload", err))
		return
	}

	files := form.File[UploadField]
	uploads := make([]fs.Upload, len(files))
	for i, fh := range files {
		fh := fh
		uploads[i] = fs.Upload{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		}
	}

	accepted, err := fs.SaveUploads(s.cfg.PDFDir, uploads)
	if err != nil {
		writeError(c, domain.E(domain.KindLoad, "save uploads", err))
		return
	}
	if len(accepted) == 0 {
		writeError(c, domain.Errorf(domain.KindValidation, "no PDF files uploaded"))
		return
	}
	slog.Info("saved uploads", "files", len(accepted), "dir", s.cfg.PDFDir)

	result, err := s.ingester.IngestDirectory(c.Request.Context(), s.cfg.PDFDir)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{Message: "Success", Files: accepted, Result: result})
}

func (s *Server) handleHealth(c *gin.Context) {
	n, err := s.index.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "entries": n})
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError maps a tagged error to a status code and a JSON body.
func writeError(c *gin.Context, err error) {
	status, label := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, errorBody{Error: label, Details: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case domain.IsUnavailable(err):
		switch domain.KindOf(err) {
		case domain.KindEmbedding:
			return http.StatusServiceUnavailable, "Embedding service unavailable"
		case domain.KindGeneration:
			return http.StatusServiceUnavailable, "Language model unavailable"
		case domain.KindStorage:
			return http.StatusServiceUnavailable, "Vector store unavailable"
		}
		return http.StatusServiceUnavailable, "Backend unavailable"
	case errors.Is(err, domain.ErrLoad):
		return http.StatusInternalServerError, "Failed to load documents"
	case errors.Is(err, domain.ErrEmbedding):
		return http.StatusInternalServerError, "Failed to embed text"
	case errors.Is(err, domain.ErrStorage):
		return http.StatusInternalServerError, "Failed to access vector store"
	case errors.Is(err, domain.ErrGeneration):
		return http.StatusInternalServerError, "Failed to generate answer"
	}
	return http.StatusInternalServerError, "Failed to process request"
}
