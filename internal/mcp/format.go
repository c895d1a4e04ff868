package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/rag"
)

// maxK bounds k for tool calls.
const maxK = 50

// FormatRetrieveResult renders a retrieve result as markdown.
func FormatRetrieveResult(query string, res *rag.RetrieveResult) string {
	var sb strings.Builder

	if res.Status == rag.StatusInfo {
		sb.WriteString(res.Message)
		return sb.String()
	}
	if len(res.Results) == 0 {
		fmt.Fprintf(&sb, "No documents matched \"%s\".", query)
		return sb.String()
	}

	fmt.Fprintf(&sb, "## Context for \"%s\"\n\n", query)
	for _, h := range res.Results {
		fmt.Fprintf(&sb, "%d. (similarity %.3f, id %d) %s\n", h.Rank, h.Similarity, h.Position, h.Text)
		if src := h.Metadata["source"]; src != "" {
			fmt.Fprintf(&sb, "   source: %s\n", src)
		}
	}
	return sb.String()
}

// clampK applies the default for k <= 0 and caps it at max.
func clampK(k, defaultVal, max int) int {
	if k <= 0 {
		return defaultVal
	}
	if k > max {
		return max
	}
	return k
}
