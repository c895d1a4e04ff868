package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/rag"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "amanrag"

// KnowledgeBase is the part of *rag.Service the tools use.
type KnowledgeBase interface {
	AddDocument(ctx context.Context, text string, metadata map[string]string) (rag.AddResult, error)
	AddDocumentsBatch(ctx context.Context, texts []string) (int, error)
	Retrieve(ctx context.Context, query string, k int, threshold float32) (*rag.RetrieveResult, error)
	Stats() rag.Stats
	Clear(ctx context.Context) error
	State() rag.State
}

// Options configures tool defaults.
type Options struct {
	DefaultK  int
	Threshold float32
}

// Server is the MCP server. It bridges AI clients with the knowledge base.
type Server struct {
	mcp    *mcp.Server
	kb     KnowledgeBase
	opts   Options
	logger *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{
		Name:        ToolAddDocument,
		Description: "Store one text in the local knowledge base. Re-adding identical text is a no-op.",
	},
	{
		Name:        ToolAddDocuments,
		Description: "Store several texts at once. Blank and already stored texts are skipped.",
	},
	{
		Name:        ToolRetrieve,
		Description: "Find the stored texts most similar to a query, nearest first. Use this to ground answers in previously added context.",
	},
	{
		Name:        ToolStats,
		Description: "Report document count, embedding model, whether the statistical fallback is active, and storage paths.",
	},
	{
		Name:        ToolClear,
		Description: "Delete every stored document and the persisted index.",
	},
}

// NewServer creates an MCP server. kb may be nil; every tool then fails
// with ErrUnavailable.
func NewServer(kb KnowledgeBase, opts Options) *Server {
	if opts.DefaultK <= 0 {
		opts.DefaultK = rag.DefaultK
	}

	s := &Server{
		kb:     kb,
		opts:   opts,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: ServerName, Version: version.Version},
		nil,
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}

// CallTool invokes a tool by name with JSON-decoded arguments. Retrieve
// returns markdown; the other tools return their output structs.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolAddDocument:
		text, _ := args["text"].(string)
		out, err := s.addDocument(ctx, AddDocumentInput{Text: text, Metadata: stringMap(args["metadata"])})
		return out, err
	case ToolAddDocuments:
		out, err := s.addDocuments(ctx, AddDocumentsInput{Texts: stringSlice(args["texts"])})
		return out, err
	case ToolRetrieve:
		query, ok := args["query"].(string)
		if !ok {
			return "", NewInvalidParamsError("query parameter is required and must be a string")
		}
		in := RetrieveInput{Query: query}
		if k, ok := args["k"].(float64); ok {
			in.K = int(k)
		}
		if th, ok := args["threshold"].(float64); ok {
			in.Threshold = float32(th)
		}
		res, err := s.retrieve(ctx, in)
		if err != nil {
			return "", err
		}
		return FormatRetrieveResult(query, res), nil
	case ToolStats:
		return s.stats()
	case ToolClear:
		return s.clear(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) addDocument(ctx context.Context, in AddDocumentInput) (AddDocumentOutput, error) {
	if s.kb == nil {
		return AddDocumentOutput{}, MapError(ErrUnavailable)
	}
	if strings.TrimSpace(in.Text) == "" {
		return AddDocumentOutput{}, NewInvalidParamsError("text parameter is required and must be a non-empty string")
	}

	requestID := generateRequestID()
	res, err := s.kb.AddDocument(ctx, in.Text, in.Metadata)
	if err != nil {
		s.logger.Error("tool_failed",
			slog.String("tool", ToolAddDocument),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return AddDocumentOutput{}, MapError(err)
	}

	msg := "Context added successfully."
	if res.Duplicate {
		msg = "Context already present."
	}
	s.logger.Info("tool_completed",
		slog.String("tool", ToolAddDocument),
		slog.String("request_id", requestID),
		slog.Bool("duplicate", res.Duplicate))
	return AddDocumentOutput{
		Status:    rag.StatusSuccess,
		Message:   msg,
		Duplicate: res.Duplicate,
		Position:  res.Position,
		Total:     res.Total,
	}, nil
}

func (s *Server) addDocuments(ctx context.Context, in AddDocumentsInput) (AddDocumentsOutput, error) {
	if s.kb == nil {
		return AddDocumentsOutput{}, MapError(ErrUnavailable)
	}
	if in.Texts == nil {
		return AddDocumentsOutput{}, NewInvalidParamsError("texts parameter is required and must be a list of strings")
	}

	added, err := s.kb.AddDocumentsBatch(ctx, in.Texts)
	if err != nil {
		return AddDocumentsOutput{}, MapError(err)
	}
	s.logger.Info("tool_completed",
		slog.String("tool", ToolAddDocuments),
		slog.Int("added", added))
	return AddDocumentsOutput{Status: rag.StatusSuccess, Added: added}, nil
}

func (s *Server) retrieve(ctx context.Context, in RetrieveInput) (*rag.RetrieveResult, error) {
	if s.kb == nil {
		return nil, MapError(ErrUnavailable)
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	start := time.Now()
	requestID := generateRequestID()
	k := clampK(in.K, s.opts.DefaultK, maxK)
	threshold := in.Threshold
	if threshold == 0 {
		threshold = s.opts.Threshold
	}

	res, err := s.kb.Retrieve(ctx, in.Query, k, threshold)
	if err != nil {
		s.logger.Error("tool_failed",
			slog.String("tool", ToolRetrieve),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("tool_completed",
		slog.String("tool", ToolRetrieve),
		slog.String("request_id", requestID),
		slog.Int("k", k),
		slog.Int("result_count", len(res.Results)),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

func (s *Server) stats() (rag.Stats, error) {
	if s.kb == nil {
		return rag.Stats{}, MapError(ErrUnavailable)
	}
	return s.kb.Stats(), nil
}

func (s *Server) clear(ctx context.Context) (ClearOutput, error) {
	if s.kb == nil {
		return ClearOutput{}, MapError(ErrUnavailable)
	}
	if err := s.kb.Clear(ctx); err != nil {
		return ClearOutput{}, MapError(err)
	}
	return ClearOutput{Status: rag.StatusSuccess, Message: "Knowledge base cleared."}, nil
}

func (s *Server) registerTools() {
	describe := func(name string) string {
		for _, t := range toolInfos {
			if t.Name == name {
				return t.Description
			}
		}
		return ""
	}

	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolAddDocument, Description: describe(ToolAddDocument)}, s.mcpAddDocumentHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolAddDocuments, Description: describe(ToolAddDocuments)}, s.mcpAddDocumentsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolRetrieve, Description: describe(ToolRetrieve)}, s.mcpRetrieveHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolStats, Description: describe(ToolStats)}, s.mcpStatsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolClear, Description: describe(ToolClear)}, s.mcpClearHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(toolInfos)))
}

func (s *Server) mcpAddDocumentHandler(ctx context.Context, _ *mcp.CallToolRequest, in AddDocumentInput) (
	*mcp.CallToolResult,
	AddDocumentOutput,
	error,
) {
	out, err := s.addDocument(ctx, in)
	return nil, out, err
}

func (s *Server) mcpAddDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, in AddDocumentsInput) (
	*mcp.CallToolResult,
	AddDocumentsOutput,
	error,
) {
	out, err := s.addDocuments(ctx, in)
	return nil, out, err
}

func (s *Server) mcpRetrieveHandler(ctx context.Context, _ *mcp.CallToolRequest, in RetrieveInput) (
	*mcp.CallToolResult,
	RetrieveOutput,
	error,
) {
	res, err := s.retrieve(ctx, in)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}
	return nil, RetrieveOutput{Status: res.Status, Message: res.Message, Results: res.Results}, nil
}

func (s *Server) mcpStatsHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	rag.Stats,
	error,
) {
	out, err := s.stats()
	return nil, out, err
}

func (s *Server) mcpClearHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ClearInput) (
	*mcp.CallToolResult,
	ClearOutput,
	error,
) {
	out, err := s.clear(ctx)
	return nil, out, err
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

var _ KnowledgeBase = (*rag.Service)(nil)
