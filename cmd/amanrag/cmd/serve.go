package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/logging"
)

type serveOptions struct {
	addr     string
	watch    bool
	watchDir string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the knowledge base over HTTP",
		Long: `Serve the knowledge base over HTTP.

Endpoints:
  GET  /health               liveness
  GET  /api/status           service state and statistics
  POST /add_context          {"text": "...", "metadata": {...}}
  POST /add_context/batch    {"texts": ["...", "..."]}
  POST /get_context          {"query": "...", "k": 3, "threshold": 0}
  GET  /system/rag/stats     statistics
  POST /system/rag/clear     delete everything

With --watch, text files dropped into the inbox directory are added too.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = opts.addr
			}
			if opts.watch || opts.watchDir != "" {
				cfg.Watch.Enabled = true
			}
			if opts.watchDir != "" {
				cfg.Watch.Dir = opts.watchDir
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":5000", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Also ingest files from the inbox directory")
	cmd.Flags().StringVar(&opts.watchDir, "watch-dir", "", "Inbox directory (implies --watch)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Server.LogLevel
		cleanup, err := logging.SetupDefault(logCfg)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A failed load still serves /health; knowledge base routes answer 503.
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("rag_unavailable", slog.String("error", err.Error()))
	} else {
		defer func() { _ = a.Close() }()
	}
	srv := app.NewHTTPServer(a, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr)
	})
	if cfg.Watch.Enabled && a != nil {
		g.Go(func() error {
			return a.RunInbox(gctx, app.InboxOptions{ScanExisting: true})
		})
	}

	err = g.Wait()
	slog.Info("serve_stopped")
	return err
}
