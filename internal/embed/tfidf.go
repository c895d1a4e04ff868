package embed

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// TFIDFModelPrefix prefixes the model name reported by the fallback embedder.
const TFIDFModelPrefix = "tfidf-svd"

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// TFIDFEmbedder is the statistical fallback: a smoothed TF-IDF vectorizer
// followed by a truncated SVD projection to a fixed width.
//
// It must be fit before use. Vectors are zero-padded when the corpus rank is
// below the configured width, then L2-normalized.
type TFIDFEmbedder struct {
	mu sync.RWMutex

	dims       int
	vocabulary map[string]int
	idf        []float64
	components [][]float64 // rank x len(vocabulary)
	keepStop   bool
	fitted     bool
	closed     bool
}

var (
	_ Embedder = (*TFIDFEmbedder)(nil)
	_ Fitter   = (*TFIDFEmbedder)(nil)
)

// NewTFIDFEmbedder creates an unfitted fallback embedder producing dims-wide vectors.
func NewTFIDFEmbedder(dims int) *TFIDFEmbedder {
	if dims <= 0 {
		dims = FallbackDimensions
	}
	return &TFIDFEmbedder{dims: dims}
}

// Fit learns the vocabulary, IDF weights and SVD components from corpus.
// If every token in the corpus is a stopword, stopwords are kept instead.
func (e *TFIDFEmbedder) Fit(corpus []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fitted {
		return fmt.Errorf("tfidf embedder already fitted")
	}

	docs := make([]string, 0, len(corpus))
	for _, text := range corpus {
		if strings.TrimSpace(text) != "" {
			docs = append(docs, text)
		}
	}
	if len(docs) == 0 {
		return ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "empty corpus for tfidf fit", nil)
	}

	keepStop := false
	df := documentFrequencies(docs, keepStop)
	if len(df) == 0 {
		keepStop = true
		df = documentFrequencies(docs, keepStop)
	}
	if len(df) == 0 {
		return ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "no tokens found in tfidf corpus", nil)
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	vocabulary := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(docs))
	for i, term := range terms {
		vocabulary[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	x := mat.NewDense(len(docs), len(terms), nil)
	for i, text := range docs {
		x.SetRow(i, weigh(tokenize(text, keepStop), vocabulary, idf))
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "tfidf svd did not converge", nil)
	}
	var v mat.Dense
	svd.VTo(&v)
	values := svd.Values(nil)

	rank := 0
	for _, s := range values {
		if s > 1e-10 && rank < e.dims {
			rank++
		}
	}

	components := make([][]float64, rank)
	for k := 0; k < rank; k++ {
		comp := mat.Col(nil, k, &v)
		// Fix the sign so the largest-magnitude weight is positive; makes
		// refits on the same corpus reproduce the same vectors.
		maxAbs, sign := 0.0, 1.0
		for _, w := range comp {
			if math.Abs(w) > maxAbs {
				maxAbs = math.Abs(w)
				sign = math.Copysign(1, w)
			}
		}
		if sign < 0 {
			for j := range comp {
				comp[j] = -comp[j]
			}
		}
		components[k] = comp
	}

	e.vocabulary = vocabulary
	e.idf = idf
	e.components = components
	e.keepStop = keepStop
	e.fitted = true
	return nil
}

// Fitted reports whether Fit has completed.
func (e *TFIDFEmbedder) Fitted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fitted
}

// Reset drops the learned transform.
func (e *TFIDFEmbedder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vocabulary = nil
	e.idf = nil
	e.components = nil
	e.keepStop = false
	e.fitted = false
}

// Rank returns the number of SVD components in use (0 before Fit).
func (e *TFIDFEmbedder) Rank() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.components)
}

// Embed projects text into the fitted space.
func (e *TFIDFEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transform(text)
}

// EmbedBatch projects each text into the fitted space.
func (e *TFIDFEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.transform(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// transform requires e.mu held.
func (e *TFIDFEmbedder) transform(text string) ([]float32, error) {
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if !e.fitted {
		return nil, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "tfidf embedder is not fitted", nil)
	}

	tfidf := weigh(tokenize(text, e.keepStop), e.vocabulary, e.idf)
	vec := make([]float32, e.dims)
	for k, comp := range e.components {
		var dot float64
		for j, w := range tfidf {
			if w != 0 {
				dot += w * comp[j]
			}
		}
		vec[k] = float32(dot)
	}
	return normalizeVector(vec), nil
}

// Dimensions returns the fixed output width.
func (e *TFIDFEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns e.g. "tfidf-svd-300".
func (e *TFIDFEmbedder) ModelName() string {
	return fmt.Sprintf("%s-%d", TFIDFModelPrefix, e.dims)
}

// Available is always true; the embedder runs in-process.
func (e *TFIDFEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources
func (e *TFIDFEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// weigh returns the L2-normalized TF-IDF row for tokens.
func weigh(tokens []string, vocabulary map[string]int, idf []float64) []float64 {
	row := make([]float64, len(idf))
	total := 0
	for _, tok := range tokens {
		if idx, ok := vocabulary[tok]; ok {
			row[idx]++
			total++
		}
	}
	if total == 0 {
		return row
	}

	var norm float64
	for i, count := range row {
		if count == 0 {
			continue
		}
		row[i] = count / float64(total) * idf[i]
		norm += row[i] * row[i]
	}
	norm = math.Sqrt(norm)
	for i := range row {
		row[i] /= norm
	}
	return row
}

func documentFrequencies(docs []string, keepStop bool) map[string]int {
	df := make(map[string]int)
	for _, text := range docs {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(text, keepStop) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	return df
}

func tokenize(text string, keepStop bool) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if keepStop {
		return raw
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := stopwords[t]; !isStop {
			out = append(out, t)
		}
	}
	return out
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so",
		"such", "into", "about", "between", "through", "during", "before", "after", "above", "below",
		"out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
