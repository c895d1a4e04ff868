package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

func newAddCmd() *cobra.Command {
	var files []string
	var source string

	cmd := &cobra.Command{
		Use:   "add [text...]",
		Short: "Add a document to the knowledge base",
		Long: `Add a document to the knowledge base.

The text is taken from the arguments, from --file (one document per file), or
from stdin when the only argument is "-". Identical text is stored once.

Examples:
  amanrag add "The sky is blue."
  amanrag add --file notes.md --file faq.txt
  echo "Grass is green." | amanrag add -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := collectDocuments(cmd.InOrStdin(), args, files, source)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				return runAdd(cmd, a.RAG, docs)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Read a document from file (repeatable)")
	cmd.Flags().StringVar(&source, "source", "", "Source metadata for text given as arguments")

	return cmd
}

type pendingDoc struct {
	text     string
	metadata map[string]string
}

func collectDocuments(stdin io.Reader, args, files []string, source string) ([]pendingDoc, error) {
	var docs []pendingDoc

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, pendingDoc{
			text:     string(data),
			metadata: map[string]string{"source": path},
		})
	}

	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		args = []string{string(data)}
	}
	if text := strings.Join(args, " "); strings.TrimSpace(text) != "" {
		var meta map[string]string
		if source != "" {
			meta = map[string]string{"source": source}
		}
		docs = append(docs, pendingDoc{text: text, metadata: meta})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("nothing to add: pass text, --file, or '-' for stdin")
	}
	return docs, nil
}

func runAdd(cmd *cobra.Command, svc *rag.Service, docs []pendingDoc) error {
	out := output.New(cmd.OutOrStdout())

	for _, doc := range docs {
		res, err := svc.AddDocument(cmd.Context(), doc.text, doc.metadata)
		if err != nil {
			return err
		}
		label := truncate(doc.text, 60)
		if src := doc.metadata["source"]; src != "" {
			label = src
		}
		if res.Duplicate {
			out.Warningf("Already stored at position %d: %s", res.Position, label)
			continue
		}
		out.Successf("Added at position %d: %s", res.Position, label)
	}

	out.KeyValue("Total documents", svc.Stats().TotalDocuments)
	return nil
}
