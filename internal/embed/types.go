// Package embed turns text into fixed-length vectors.
//
// Select walks a prioritized list of factories: an Ollama model server,
// then the same model pinned to the CPU, then a TF-IDF projection fitted on
// the stored documents.
package embed

import (
	"context"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	DefaultBatchSize  = 32
	MaxBatchSize      = 256
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 2

	// FallbackDimensions is the width of TF-IDF vectors.
	FallbackDimensions = 300
)

// Embedder maps text to vectors of a fixed width. Implementations are safe
// for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns exactly one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int

	// ModelName identifies the vector space. Vectors from different model
	// names must never share an index.
	ModelName() string

	Available(ctx context.Context) bool
	Close() error
}

// Fitter is an Embedder that learns its transform from a corpus first.
type Fitter interface {
	// Fit errors when already fitted; call Reset to refit.
	Fit(corpus []string) error
	Fitted() bool
	Reset()
}

// normalizeVector scales v to unit L2 length. The zero vector is returned
// unchanged.
func normalizeVector(v []float32) []float32 {
	wide := make([]float64, len(v))
	for i, x := range v {
		wide[i] = float64(x)
	}
	norm := floats.Norm(wide, 2)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range wide {
		out[i] = float32(x / norm)
	}
	return out
}
