// Package app builds the process-wide application context: configuration,
// the selected embedder and the knowledge base, plus the façades that serve
// them. It is created once at startup and handed to whichever front end runs.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/Aman-CERP/amanrag/internal/api"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/mcp"
	"github.com/Aman-CERP/amanrag/internal/rag"
	"github.com/Aman-CERP/amanrag/internal/watcher"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// App owns the knowledge base for the lifetime of the process.
type App struct {
	Config *config.Config
	RAG    *rag.Service
}

// New selects an embedder and loads the knowledge base described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	sel, err := embed.NewEmbedder(ctx, cfg.EmbedOptions())
	if err != nil {
		return nil, err
	}
	// embed.Select has logged the choice and any failed attempts.
	svc, err := rag.New(ctx, sel, rag.Options{
		DataDir:          cfg.Storage.DataDir,
		IndexKind:        cfg.IndexKind(),
		RepairOnMismatch: cfg.Storage.RepairOnMismatch,
	})
	if err != nil {
		_ = sel.Embedder.Close()
		return nil, err
	}
	return &App{Config: cfg, RAG: svc}, nil
}

// HTTPServer returns the gin façade over the knowledge base.
func (a *App) HTTPServer() *api.Server {
	return NewHTTPServer(a, a.Config)
}

// NewHTTPServer builds the HTTP façade. a may be nil when the knowledge base
// failed to load; the server then answers 503 on its routes.
func NewHTTPServer(a *App, cfg *config.Config) *api.Server {
	var kb api.KnowledgeBase
	if a != nil {
		kb = a.RAG
	}
	return api.NewServer(kb, api.Options{
		DefaultK:  cfg.Retrieval.DefaultK,
		Threshold: cfg.Retrieval.Threshold,
		Version:   version.Version,
	})
}

// MCPServer returns the MCP façade over the knowledge base.
func (a *App) MCPServer() *mcp.Server {
	return mcp.NewServer(a.RAG, mcp.Options{
		DefaultK:  a.Config.Retrieval.DefaultK,
		Threshold: a.Config.Retrieval.Threshold,
	})
}

// InboxOptions tunes RunInbox.
type InboxOptions struct {
	// Dir overrides watch.dir.
	Dir          string
	ScanExisting bool
	ForcePolling bool
	OnIngest     func(path string, res rag.AddResult, err error)
}

// RunInbox watches the inbox directory and adds new files until ctx is
// cancelled. The directory is created if missing.
func (a *App) RunInbox(ctx context.Context, opts InboxOptions) error {
	dir := opts.Dir
	if dir == "" {
		dir = a.Config.Watch.Dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create inbox %s: %w", dir, err)
	}

	w, err := watcher.New(watcher.Options{
		Debounce:     a.Config.WatchDebounce(),
		ForcePolling: opts.ForcePolling,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	in := watcher.NewIngester(a.RAG, w, watcher.IngestOptions{
		Extensions:   a.Config.Watch.Exts,
		ScanExisting: opts.ScanExisting,
		OnIngest:     opts.OnIngest,
	})
	return in.Run(ctx, dir)
}

// Close releases the embedder.
func (a *App) Close() error {
	return a.RAG.Close()
}
