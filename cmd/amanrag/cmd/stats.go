package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/profiling"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return runStats(cmd, a.RAG.Stats(), jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}

func runStats(cmd *cobra.Command, stats rag.Stats, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("Knowledge Base")
	out.KeyValue("Documents", stats.TotalDocuments)
	out.KeyValue("Index entries", stats.IndexCount)
	out.KeyValue("Index kind", stats.IndexKind)
	out.KeyValue("State", stats.State)
	out.Newline()

	out.Header("Embeddings")
	out.KeyValue("Model", stats.ModelName)
	out.KeyValue("Type", stats.ModelType)
	out.KeyValue("Dimension", stats.EmbeddingDimension)
	out.KeyValue("Fallback", stats.UseFallback)
	if stats.FallbackRank > 0 {
		out.KeyValue("SVD components", stats.FallbackRank)
	}
	out.Newline()

	out.Header("Storage")
	out.KeyValue("Data dir", stats.DataDir)
	out.KeyValue("Index", fileLabel(stats.IndexPath))
	out.KeyValue("Documents file", fileLabel(stats.DocStorePath))
	out.KeyValue("Metadata", fileLabel(stats.MetadataPath))

	if !stats.Consistent {
		out.Newline()
		out.Warning("Index and document counts differ. Set storage.repair_on_mismatch to rebuild on load.")
	}
	return nil
}

func fileLabel(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path + " (not written)"
	}
	return path + " (" + profiling.FormatBytes(info.Size()) + ")"
}
