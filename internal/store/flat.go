package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/google/renameio"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// flatMagic opens every flat index file.
var flatMagic = [4]byte{'A', 'R', 'V', 'I'}

const (
	flatVersion    = 1
	flatHeaderSize = 16 // magic + version + dim + count
)

// FlatIndex is an exact brute-force L2 index. Distances accumulate in
// float64 and ties are broken by position, so results are deterministic.
type FlatIndex struct {
	mu   sync.RWMutex
	dim  int
	vecs [][]float32
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex creates an empty flat index.
func NewFlatIndex(dimensions int) *FlatIndex {
	return &FlatIndex{dim: dimensions}
}

// Add appends vectors in order.
func (f *FlatIndex) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != f.dim {
			return dimensionError(f.dim, len(v))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		f.vecs = append(f.vecs, append([]float32(nil), v...))
	}
	return nil
}

// Search scans every vector.
func (f *FlatIndex) Search(query []float32, k int) (*SearchResult, error) {
	if len(query) != f.dim {
		return nil, dimensionError(f.dim, len(query))
	}
	if k <= 0 {
		return nil, ragerrors.ValidationError(fmt.Sprintf("k must be positive, got %d", k), nil)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.vecs) == 0 {
		return &SearchResult{Empty: true}, nil
	}

	hits := make([]Hit, len(f.vecs))
	for pos, v := range f.vecs {
		hits[pos] = Hit{Position: pos, Distance: float32(l2(query, v))}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].Position < hits[b].Position
	})
	if k > len(hits) {
		k = len(hits)
	}
	return &SearchResult{Hits: hits[:k]}, nil
}

// Count returns number of vectors.
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vecs)
}

// Dimensions returns the vector width.
func (f *FlatIndex) Dimensions() int {
	return f.dim
}

// Kind returns IndexFlat.
func (f *FlatIndex) Kind() IndexKind {
	return IndexFlat
}

// Reset drops every vector.
func (f *FlatIndex) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vecs = nil
}

// Save writes magic, version, dim, count (little-endian uint32) followed by
// the rows as little-endian float32. The file is replaced atomically.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	buf := make([]byte, flatHeaderSize, flatHeaderSize+4*f.dim*len(f.vecs))
	copy(buf[0:4], flatMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], flatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(f.dim))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(f.vecs)))
	for _, v := range f.vecs {
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
		}
	}

	if err := renameio.WriteFile(path, buf, 0o644); err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to write vector index", err).
			WithDetail("path", path)
	}
	return nil
}

// Load replaces the contents with the file at path. The stored width must
// match Dimensions().
func (f *FlatIndex) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ragerrors.New(ragerrors.ErrCodeFileNotFound, "vector index not found", err).
				WithDetail("path", path)
		}
		return ragerrors.New(ragerrors.ErrCodeCorruptIndex, "failed to read vector index", err)
	}

	corrupt := func(msg string) error {
		return ragerrors.New(ragerrors.ErrCodeCorruptIndex, msg, nil).WithDetail("path", path)
	}
	if len(data) < flatHeaderSize || [4]byte(data[0:4]) != flatMagic {
		return corrupt("not a vector index file")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != flatVersion {
		return corrupt(fmt.Sprintf("unsupported vector index version %d", v))
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	n := int(binary.LittleEndian.Uint32(data[12:16]))
	if dim != f.dim {
		return dimensionError(f.dim, dim).WithDetail("path", path)
	}
	if len(data) != flatHeaderSize+4*dim*n {
		return corrupt(fmt.Sprintf("vector index truncated: %d bytes for %d vectors of %d dims", len(data), n, dim))
	}

	vecs := make([][]float32, n)
	off := flatHeaderSize
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		vecs[i] = v
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.vecs = vecs
	return nil
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func dimensionError(expected, got int) *ragerrors.RagError {
	return ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}
