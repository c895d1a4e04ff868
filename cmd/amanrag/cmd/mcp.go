package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/logging"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server over stdio",
		Long: `Run as an MCP server over stdio.

stdout carries only JSON-RPC, so logs go to ~/.amanrag/logs/server.log.
Tools: add_document, add_documents, retrieve, rag_stats, clear_knowledge_base.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			level := cfg.Server.LogLevel
			if debugMode {
				level = "debug"
			}
			cleanup, err := logging.SetupMCPMode(level)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				slog.Error("mcp_startup_failed", slog.String("error", err.Error()))
				return err
			}
			defer func() { _ = a.Close() }()

			return a.MCPServer().Serve(ctx, "stdio")
		},
	}
}
