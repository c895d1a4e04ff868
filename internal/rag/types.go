// Package rag is the knowledge base service: it ties an embedder, a vector
// index and the document store together and keeps them persisted.
package rag

import (
	"fmt"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// DefaultK is the number of hits returned when the caller passes k <= 0.
const DefaultK = 3

// EmptyStoreMessage is returned by Retrieve when nothing has been added.
const EmptyStoreMessage = "The knowledge base is empty. Add documents first."

// State is the service lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Status values of a RetrieveResult.
const (
	StatusSuccess = "success"
	StatusInfo    = "info"
)

// Options configures a Service.
type Options struct {
	// DataDir holds the index, document and metadata files.
	DataDir string

	// IndexKind selects flat (default) or hnsw.
	IndexKind store.IndexKind

	// RepairOnMismatch re-embeds every document when the loaded index and
	// document list disagree, instead of serving with a warning.
	RepairOnMismatch bool
}

// AddResult describes a successful AddDocument.
type AddResult struct {
	Added     bool `json:"added"`
	Duplicate bool `json:"duplicate"`
	Position  int  `json:"position"`
	Total     int  `json:"total"`
}

// Hit is one retrieved document.
type Hit struct {
	Text       string            `json:"text"`
	Similarity float32           `json:"similarity"`
	Distance   float32           `json:"distance"`
	Rank       int               `json:"rank"`
	Position   int               `json:"id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RetrieveResult is the outcome of Retrieve. Status is "info" with Message
// set when the store is empty.
type RetrieveResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Results []Hit  `json:"results"`
}

// Texts returns the hit texts in rank order.
func (r *RetrieveResult) Texts() []string {
	out := make([]string, len(r.Results))
	for i, h := range r.Results {
		out[i] = h.Text
	}
	return out
}

// Stats is a snapshot of the service.
type Stats struct {
	TotalDocuments     int    `json:"total_documents"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	ModelName          string `json:"model_name"`
	ModelType          string `json:"model_type"`
	UseFallback        bool   `json:"use_fallback"`
	IndexKind          string `json:"index_kind"`
	IndexCount         int    `json:"index_count"`
	Consistent         bool   `json:"consistent"`
	DataDir            string `json:"data_dir"`
	IndexPath          string `json:"index_path"`
	DocStorePath       string `json:"doc_store_path"`
	MetadataPath       string `json:"metadata_path"`
	State              string `json:"state"`
	FallbackRank       int    `json:"fallback_rank,omitempty"`
}
