package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"pdfrag/internal/adapter/cache"
	"pdfrag/internal/app"
	"pdfrag/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat and upload API over HTTP",
	Long: `Start the HTTP API.

Endpoints:
  POST /api/chat     {"question": "..."}; prefix with "store:" to add text
  POST /api/upload   multipart field "pdfs"; saves and ingests the PDFs
  GET  /healthz      index entry count

Examples:
  rag serve
  rag serve --addr 127.0.0.1:8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	a, err := app.New(ctx, cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	gin.SetMode(gin.ReleaseMode)
	api := httpapi.NewServer(a.Chat, a.Ingestor, a.Index, httpapi.Config{
		PDFDir:         a.PDFDir(),
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr, "index", a.Describe(), "llm", a.LLM.ModelName(), "embedder", a.Embedder.ModelName())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if ce, ok := a.Embedder.(*cache.CachedEmbedder); ok {
		hits, misses := ce.Cache().Stats()
		slog.Info("query cache", "entries", ce.Cache().Size(), "hits", hits, "misses", misses)
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
