package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StatsResourceURI exposes rag_stats as a readable resource.
const StatsResourceURI = "amanrag://stats"

// ResourceContent is the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "knowledge_base_stats",
			URI:         StatsResourceURI,
			Description: "Document count, embedding model and storage paths of the knowledge base",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			rc, err := s.ReadResource(ctx, StatsResourceURI)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{URI: rc.URI, MIMEType: rc.MIMEType, Text: rc.Content},
				},
			}, nil
		},
	)
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(_ context.Context, uri string) (*ResourceContent, error) {
	if uri != StatsResourceURI {
		return nil, NewResourceNotFoundError(uri)
	}
	stats, err := s.stats()
	if err != nil {
		return nil, err
	}
	content, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &ResourceContent{URI: uri, Content: string(content), MIMEType: "application/json"}, nil
}
