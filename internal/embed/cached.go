package embed

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize bounds the query vector cache. 1000 vectors of
// 384 float32s is roughly 1.5MB.
const DefaultEmbeddingCacheSize = 1000

// vectorKey scopes a cached vector to the model that produced it, so a
// model switch on the same process never serves stale dimensions.
type vectorKey struct {
	model string
	text  string
}

// CacheStats reports cache effectiveness since creation or the last Purge.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// CachedEmbedder memoises vectors from a network Embedder. Retrieval embeds
// the same question repeatedly; the cache saves the Ollama round trip.
type CachedEmbedder struct {
	inner  Embedder
	lru    *lru.Cache[vectorKey, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner with an LRU holding up to size vectors.
// A non-positive size selects DefaultEmbeddingCacheSize.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	// lru.New only fails on size <= 0.
	c, _ := lru.New[vectorKey, []float32](size)
	return &CachedEmbedder{inner: inner, lru: c}
}

// NewCachedEmbedderWithDefaults is NewCachedEmbedder at the default size.
func NewCachedEmbedderWithDefaults(inner Embedder) *CachedEmbedder {
	return NewCachedEmbedder(inner, DefaultEmbeddingCacheSize)
}

func (c *CachedEmbedder) key(text string) vectorKey {
	return vectorKey{model: c.inner.ModelName(), text: text}
}

// lookup returns a copy so callers may normalise the vector in place.
func (c *CachedEmbedder) lookup(text string) ([]float32, bool) {
	vec, ok := c.lru.Get(c.key(text))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return append([]float32(nil), vec...), true
}

func (c *CachedEmbedder) remember(text string, vec []float32) {
	c.lru.Add(c.key(text), append([]float32(nil), vec...))
}

// Embed serves text from the cache or delegates to the wrapped embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lookup(text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.remember(text, vec)
	return vec, nil
}

// EmbedBatch resolves hits locally and sends only the misses to the wrapped
// embedder, in one call. Output order matches texts.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if vec, ok := c.lookup(text); ok {
			out[i] = vec
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	batch := make([]string, len(pending))
	for j, i := range pending {
		batch[j] = texts[i]
	}
	vecs, err := c.inner.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	for j, i := range pending {
		out[i] = vecs[j]
		c.remember(texts[i], vecs[j])
	}
	return out, nil
}

func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedEmbedder) Close() error                       { return c.inner.Close() }

// Inner exposes the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }

// Len is the number of vectors currently held.
func (c *CachedEmbedder) Len() int { return c.lru.Len() }

// Stats snapshots cache counters.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{Entries: c.lru.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Purge empties the cache and resets its counters. Called when the
// knowledge base is cleared.
func (c *CachedEmbedder) Purge() {
	c.lru.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}
