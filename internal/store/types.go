// Package store holds the knowledge base's on-disk state: the vector index,
// the ordered document list and the metadata record, plus the file lock
// that serializes writers across processes.
package store

import (
	"fmt"
	"time"
)

// IndexKind selects the VectorIndex implementation.
type IndexKind string

const (
	// IndexFlat is exact brute-force L2 search (default).
	IndexFlat IndexKind = "flat"

	// IndexHNSW is an approximate coder/hnsw graph with exact re-scoring.
	IndexHNSW IndexKind = "hnsw"
)

// ParseIndexKind validates an index kind. Empty means flat.
func ParseIndexKind(s string) (IndexKind, error) {
	switch IndexKind(s) {
	case "", IndexFlat:
		return IndexFlat, nil
	case IndexHNSW:
		return IndexHNSW, nil
	default:
		return "", fmt.Errorf("unknown index kind %q (want flat or hnsw)", s)
	}
}

// File names inside the data directory.
const (
	FlatIndexFile = "vector_index.bin"
	HNSWIndexFile = "vector_index.hnsw"
	DocStoreFile  = "doc_store.json"
	MetadataFile  = "metadata.json"
	LockFile      = ".amanrag.lock"
)

// Document is one stored text. ID is its ordinal position, which is also
// its position in the vector index.
type Document struct {
	ID       int               `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Hit is one nearest-neighbour result.
type Hit struct {
	Position int
	Distance float32
}

// SearchResult is the outcome of VectorIndex.Search. Empty is set when the
// index holds no vectors; Hits is then nil.
type SearchResult struct {
	Empty bool
	Hits  []Hit
}

// VectorIndex stores vectors in insertion order and answers L2
// nearest-neighbour queries. Positions are 0-based insertion indexes.
type VectorIndex interface {
	// Add appends vectors; all must have Dimensions() entries.
	Add(vectors [][]float32) error

	// Search returns up to min(k, Count()) hits ascending by distance.
	Search(query []float32, k int) (*SearchResult, error)

	// Count returns number of vectors.
	Count() int

	// Dimensions returns the vector width.
	Dimensions() int

	// Kind reports the implementation.
	Kind() IndexKind

	// Reset drops every vector.
	Reset()

	// Persistence
	Save(path string) error
	Load(path string) error
}

// NewVectorIndex creates an empty index of the given kind.
func NewVectorIndex(kind IndexKind, dimensions int) (VectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid index dimensions %d", dimensions)
	}
	switch kind {
	case "", IndexFlat:
		return NewFlatIndex(dimensions), nil
	case IndexHNSW:
		return NewHNSWIndex(DefaultHNSWConfig(dimensions)), nil
	default:
		return nil, fmt.Errorf("unknown index kind %q", kind)
	}
}

// IndexFileName returns the index file name for kind.
func IndexFileName(kind IndexKind) string {
	if kind == IndexHNSW {
		return HNSWIndexFile
	}
	return FlatIndexFile
}

// Similarity maps an L2 distance to (0, 1]; identical vectors score 1.
func Similarity(distance float32) float32 {
	return 1 / (1 + distance)
}

// Metadata is the record persisted in metadata.json on every save.
type Metadata struct {
	TotalDocs       int       `json:"total_docs"`
	ModelName       string    `json:"model_name"`
	UseFallback     bool      `json:"use_fallback"`
	Dimension       int       `json:"dimension"`
	Provider        string    `json:"provider,omitempty"`
	IndexKind       IndexKind `json:"index_kind,omitempty"`
	FallbackFitDocs int       `json:"fallback_fit_docs,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
