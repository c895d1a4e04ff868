// Package api exposes the knowledge base over HTTP with gin.
package api

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Aman-CERP/amanrag/internal/rag"
)

// KnowledgeBase is the part of *rag.Service the handlers use.
type KnowledgeBase interface {
	AddDocument(ctx context.Context, text string, metadata map[string]string) (rag.AddResult, error)
	AddDocumentsBatch(ctx context.Context, texts []string) (int, error)
	Retrieve(ctx context.Context, query string, k int, threshold float32) (*rag.RetrieveResult, error)
	Stats() rag.Stats
	Clear(ctx context.Context) error
	State() rag.State
}

// Options configures the router.
type Options struct {
	// DefaultK is used when a request omits k.
	DefaultK int
	// Threshold is used when a request omits threshold.
	Threshold float32
	// Service names this process in /health.
	Service string
	// Version is reported by /health.
	Version string
}

// Server owns the router and the underlying http.Server.
type Server struct {
	kb     KnowledgeBase
	opts   Options
	router *gin.Engine
}

// NewServer builds the router. kb may be nil, in which case the knowledge
// base routes answer 503.
func NewServer(kb KnowledgeBase, opts Options) *Server {
	if opts.DefaultK <= 0 {
		opts.DefaultK = rag.DefaultK
	}
	if opts.Service == "" {
		opts.Service = "amanrag"
	}

	s := &Server{kb: kb, opts: opts}
	s.router = s.routes()
	return s
}

// Handler returns the gin engine as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/", s.handleIndex)
	r.GET("/health", s.handleHealth)

	kb := r.Group("/", s.requireKnowledgeBase)
	{
		kb.GET("/api/status", s.handleStatus)
		kb.POST("/add_context", s.handleAddContext)
		kb.POST("/add_context/batch", s.handleAddContextBatch)
		kb.POST("/get_context", s.handleGetContext)
		kb.GET("/system/rag/stats", s.handleStats)
		kb.POST("/system/rag/clear", s.handleClear)
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_server_started", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("http_server_stopped", slog.String("addr", addr))
	return nil
}

// requestLogger logs each request through slog instead of gin's writer.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http_request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}
