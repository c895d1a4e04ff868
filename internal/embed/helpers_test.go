package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// mockEmbedder hands out one fixed vector and counts how it was asked.
type mockEmbedder struct {
	dimensions int
	modelName  string
	vec        []float32
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	closed     atomic.Bool
}

func newMockEmbedder(dims int) *mockEmbedder {
	m := &mockEmbedder{dimensions: dims, modelName: "mock-model", vec: make([]float32, dims)}
	for i := range m.vec {
		m.vec[i] = float32(i) / 1000
	}
	return m
}

func (m *mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	m.embedCalls.Add(1)
	return m.vec, nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = m.vec
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int                  { return m.dimensions }
func (m *mockEmbedder) ModelName() string                { return m.modelName }
func (m *mockEmbedder) Available(_ context.Context) bool { return true }
func (m *mockEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

// fakeOllama serves /api/tags and /api/embed. Each input gets a vector of
// dims values derived from its length so distinct texts differ.
type fakeOllama struct {
	models      []string
	dims        int
	embedStatus atomic.Int32
	embedCalls  atomic.Int64
	lastOptions atomic.Value // map[string]any
}

func newFakeOllama(t *testing.T, f *fakeOllama) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		resp := OllamaModelListResponse{}
		for _, m := range f.models {
			resp.Models = append(resp.Models, OllamaModelInfo{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls.Add(1)
		if status := int(f.embedStatus.Load()); status != 0 && status != http.StatusOK {
			http.Error(w, "model failed to load", status)
			return
		}
		var req OllamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Options != nil {
			f.lastOptions.Store(req.Options)
		}
		var inputs []string
		switch v := req.Input.(type) {
		case string:
			inputs = []string{v}
		case []any:
			for _, s := range v {
				inputs = append(inputs, s.(string))
			}
		}
		resp := OllamaEmbedResponse{Model: req.Model}
		for _, in := range inputs {
			vec := make([]float64, f.dims)
			for i := range vec {
				vec[i] = float64(len(in)%7+1) / float64(i+1)
			}
			resp.Embeddings = append(resp.Embeddings, vec)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func vectorMagnitude(v []float32) float64 {
	return floats.Norm(widen(v), 2)
}

// cosineSimilarity is 0 for mismatched widths or a zero vector.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := vectorMagnitude(a), vectorMagnitude(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(widen(a), widen(b)) / (na * nb)
}
