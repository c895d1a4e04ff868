package rag

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// keywordEmbedder counts vocabulary words and L2-normalizes the counts.
// Deterministic and small enough to reason about distances by hand.
type keywordEmbedder struct {
	vocab []string
	name  string
	fail  bool
}

var defaultVocab = []string{"sky", "blue", "grass", "green", "bananas", "yellow", "color", "milk"}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	if len(vocab) == 0 {
		vocab = defaultVocab
	}
	return &keywordEmbedder{vocab: vocab, name: "keyword-test"}
}

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if k.fail {
		return nil, errors.New("model server went away")
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	vec := make([]float32, len(k.vocab))
	for _, w := range words {
		for i, v := range k.vocab {
			if w == v {
				vec[i]++
			}
		}
	}
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		inv := float32(1 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (k *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := k.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (k *keywordEmbedder) Dimensions() int                  { return len(k.vocab) }
func (k *keywordEmbedder) ModelName() string                { return k.name }
func (k *keywordEmbedder) Available(_ context.Context) bool { return !k.fail }
func (k *keywordEmbedder) Close() error                     { return nil }

func primarySelection(e embed.Embedder) *embed.Selection {
	return &embed.Selection{Embedder: e, Name: embed.FactoryOllama, Provider: embed.ProviderOllama}
}

// fallbackSelection runs the real chain with a dead primary.
func fallbackSelection(t *testing.T) *embed.Selection {
	t.Helper()
	sel, err := embed.Select(context.Background(), []embed.Factory{
		{Name: embed.FactoryOllama, Provider: embed.ProviderOllama, New: func(context.Context) (embed.Embedder, error) {
			return nil, errors.New("connection refused")
		}},
		{Name: embed.FactoryTFIDF, Provider: embed.ProviderTFIDF, Fallback: true, New: func(context.Context) (embed.Embedder, error) {
			return embed.NewTFIDFEmbedder(embed.FallbackDimensions), nil
		}},
	})
	require.NoError(t, err)
	return sel
}

func newTestService(t *testing.T, dir string, sel *embed.Selection, kind store.IndexKind) *Service {
	t.Helper()
	svc, err := New(context.Background(), sel, Options{DataDir: dir, IndexKind: kind})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}
