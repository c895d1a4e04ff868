package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/renameio"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

var hnswMagic = [4]byte{'A', 'R', 'V', 'H'}

const hnswVersion = 1

// HNSWConfig configures the graph index.
type HNSWConfig struct {
	// Dimensions is the vector width
	Dimensions int

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 64); raised to k per query
	EfSearch int

	// Ml is the level generation factor (default: 0.25)
	Ml float64
}

// DefaultHNSWConfig returns sensible defaults for the graph index.
func DefaultHNSWConfig(dimensions int) HNSWConfig {
	return HNSWConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
		Ml:         0.25,
	}
}

// HNSWIndex implements VectorIndex on a coder/hnsw graph keyed by position.
// The graph only nominates candidates; reported distances are exact L2.
type HNSWIndex struct {
	mu     sync.Mutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty graph index.
func NewHNSWIndex(cfg HNSWConfig) *HNSWIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	if cfg.Ml == 0 {
		cfg.Ml = 0.25
	}
	return &HNSWIndex{graph: newGraph(cfg), config: cfg}
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = cfg.Ml
	return g
}

// Add appends vectors; the node key is the insertion position.
func (s *HNSWIndex) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return dimensionError(s.config.Dimensions, len(v))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := uint64(s.graph.Len())
	for i, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		s.graph.Add(hnsw.MakeNode(next+uint64(i), vec))
	}
	return nil
}

// Search takes the exclusive lock because EfSearch is widened to k.
func (s *HNSWIndex) Search(query []float32, k int) (*SearchResult, error) {
	if len(query) != s.config.Dimensions {
		return nil, dimensionError(s.config.Dimensions, len(query))
	}
	if k <= 0 {
		return nil, ragerrors.ValidationError(fmt.Sprintf("k must be positive, got %d", k), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.graph.Len()
	if n == 0 {
		return &SearchResult{Empty: true}, nil
	}
	if k > n {
		k = n
	}

	s.graph.EfSearch = max(s.config.EfSearch, k)
	nodes := s.graph.Search(query, k)
	s.graph.EfSearch = s.config.EfSearch

	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, Hit{Position: int(node.Key), Distance: float32(l2(query, node.Value))})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].Position < hits[b].Position
	})
	return &SearchResult{Hits: hits}, nil
}

// Count returns number of vectors.
func (s *HNSWIndex) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Len()
}

// Dimensions returns the vector width.
func (s *HNSWIndex) Dimensions() int {
	return s.config.Dimensions
}

// Kind returns IndexHNSW.
func (s *HNSWIndex) Kind() IndexKind {
	return IndexHNSW
}

// Reset drops every vector.
func (s *HNSWIndex) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = newGraph(s.config)
}

// Save writes a header (magic, version, dim, count) followed by the graph
// export. The file is replaced atomically.
func (s *HNSWIndex) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := renameio.TempFile("", path)
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to create index file", err).WithDetail("path", path)
	}
	defer func() { _ = pf.Cleanup() }()

	w := bufio.NewWriter(pf)
	var header [16]byte
	copy(header[0:4], hnswMagic[:])
	binary.LittleEndian.PutUint32(header[4:8], hnswVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(s.config.Dimensions))
	binary.LittleEndian.PutUint32(header[12:16], uint32(s.graph.Len()))
	if _, err := w.Write(header[:]); err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to write index header", err)
	}
	if s.graph.Len() > 0 {
		if err := s.graph.Export(w); err != nil {
			return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to export graph", err)
		}
	}
	if err := w.Flush(); err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to flush index file", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to replace index file", err).WithDetail("path", path)
	}
	return nil
}

// Load replaces the graph with the file at path.
func (s *HNSWIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ragerrors.New(ragerrors.ErrCodeFileNotFound, "vector index not found", err).WithDetail("path", path)
		}
		return ragerrors.New(ragerrors.ErrCodeCorruptIndex, "failed to open vector index", err)
	}
	defer func() { _ = file.Close() }()

	corrupt := func(msg string, cause error) error {
		return ragerrors.New(ragerrors.ErrCodeCorruptIndex, msg, cause).WithDetail("path", path)
	}

	// coder/hnsw Import requires io.ByteReader
	reader := bufio.NewReader(file)
	var header [16]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return corrupt("vector index header truncated", err)
	}
	if [4]byte(header[0:4]) != hnswMagic {
		return corrupt("not an hnsw index file", nil)
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != hnswVersion {
		return corrupt(fmt.Sprintf("unsupported hnsw index version %d", v), nil)
	}
	dim := int(binary.LittleEndian.Uint32(header[8:12]))
	count := int(binary.LittleEndian.Uint32(header[12:16]))
	if dim != s.config.Dimensions {
		return dimensionError(s.config.Dimensions, dim).WithDetail("path", path)
	}

	graph := newGraph(s.config)
	if count > 0 {
		if err := graph.Import(reader); err != nil {
			return corrupt("failed to import graph", err)
		}
		// Import restores the persisted parameters; keep ours.
		graph.Distance = hnsw.EuclideanDistance
		graph.EfSearch = s.config.EfSearch
	}
	if graph.Len() != count {
		return corrupt(fmt.Sprintf("hnsw index holds %d nodes, header says %d", graph.Len(), count), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = graph
	return nil
}
