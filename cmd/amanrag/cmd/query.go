package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

type queryOptions struct {
	k          int
	threshold  float32
	jsonOutput bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:     "query <text>",
		Aliases: []string{"retrieve", "search"},
		Short:   "Retrieve the documents most similar to a query",
		Long: `Retrieve the documents most similar to a query.

Results are ranked by cosine similarity. --threshold drops hits whose L2
distance is below the given value; 0 keeps everything.

Examples:
  amanrag query "What color is the sky?"
  amanrag query "sky" -k 1 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")
			return withApp(cmd.Context(), func(a *app.App) error {
				if !cmd.Flags().Changed("k") {
					opts.k = a.Config.Retrieval.DefaultK
				}
				if !cmd.Flags().Changed("threshold") {
					opts.threshold = a.Config.Retrieval.Threshold
				}
				return runQuery(cmd, a.RAG, q, opts)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", rag.DefaultK, "Number of results")
	cmd.Flags().Float32Var(&opts.threshold, "threshold", 0, "Drop hits with L2 distance below this value")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runQuery(cmd *cobra.Command, svc *rag.Service, q string, opts queryOptions) error {
	res, err := svc.Retrieve(cmd.Context(), q, opts.k, opts.threshold)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	out := output.New(cmd.OutOrStdout())
	if res.Status == rag.StatusInfo {
		out.Warning(res.Message)
		return nil
	}
	if len(res.Results) == 0 {
		out.Warning("No documents matched the query.")
		return nil
	}

	out.Header("Results for: " + q)
	for _, hit := range res.Results {
		out.Hit(hit.Rank, float64(hit.Similarity), hit.Text, hit.Metadata["source"])
	}
	return nil
}
