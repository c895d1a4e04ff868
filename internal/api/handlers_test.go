package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeKB records calls and returns canned results.
type fakeKB struct {
	docs []string

	addErr      error
	retrieveErr error
	clearErr    error

	lastK         int
	lastThreshold float32
	lastMetadata  map[string]string
	cleared       bool
}

func (f *fakeKB) AddDocument(_ context.Context, text string, metadata map[string]string) (rag.AddResult, error) {
	if f.addErr != nil {
		return rag.AddResult{}, f.addErr
	}
	if text == "" {
		return rag.AddResult{}, ragerrors.ValidationError("document text must be a non-empty string", nil)
	}
	f.lastMetadata = metadata
	for i, d := range f.docs {
		if d == text {
			return rag.AddResult{Duplicate: true, Position: i, Total: len(f.docs)}, nil
		}
	}
	f.docs = append(f.docs, text)
	return rag.AddResult{Added: true, Position: len(f.docs) - 1, Total: len(f.docs)}, nil
}

func (f *fakeKB) AddDocumentsBatch(_ context.Context, texts []string) (int, error) {
	if f.addErr != nil {
		return 0, f.addErr
	}
	f.docs = append(f.docs, texts...)
	return len(texts), nil
}

func (f *fakeKB) Retrieve(_ context.Context, query string, k int, threshold float32) (*rag.RetrieveResult, error) {
	f.lastK, f.lastThreshold = k, threshold
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	if query == "" {
		return nil, ragerrors.New(ragerrors.ErrCodeQueryEmpty, "query must be a non-empty string", nil)
	}
	if len(f.docs) == 0 {
		return &rag.RetrieveResult{Status: rag.StatusInfo, Message: rag.EmptyStoreMessage, Results: []rag.Hit{}}, nil
	}
	hits := make([]rag.Hit, 0, k)
	for i, d := range f.docs {
		if i >= k {
			break
		}
		hits = append(hits, rag.Hit{Text: d, Rank: i + 1, Position: i, Similarity: 1})
	}
	return &rag.RetrieveResult{Status: rag.StatusSuccess, Results: hits}, nil
}

func (f *fakeKB) Stats() rag.Stats {
	return rag.Stats{TotalDocuments: len(f.docs), ModelName: "fake", State: rag.StateReady.String()}
}

func (f *fakeKB) Clear(context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.docs = nil
	f.cleared = true
	return nil
}

func (f *fakeKB) State() rag.State { return rag.StateReady }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestIndex_ReturnsRunningMessage(t *testing.T) {
	h := NewServer(&fakeKB{}, Options{}).Handler()

	rec := do(t, h, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, IndexMessage, rec.Body.String())
}

func TestHealth_ReportsServiceAndVersion(t *testing.T) {
	h := NewServer(&fakeKB{}, Options{Version: "1.2.3"}).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "amanrag", body["service"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestNilKnowledgeBase_Returns503(t *testing.T) {
	// Given: a server with no knowledge base wired
	h := NewServer(nil, Options{}).Handler()

	routes := []struct{ method, path, body string }{
		{http.MethodGet, "/api/status", ""},
		{http.MethodPost, "/add_context", `{"text":"a"}`},
		{http.MethodPost, "/add_context/batch", `{"texts":["a"]}`},
		{http.MethodPost, "/get_context", `{"query":"a"}`},
		{http.MethodGet, "/system/rag/stats", ""},
		{http.MethodPost, "/system/rag/clear", ""},
	}
	for _, r := range routes {
		t.Run(r.path, func(t *testing.T) {
			// When: calling a knowledge base route
			rec := do(t, h, r.method, r.path, r.body)

			// Then: 503 with the unavailable message
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Equal(t, UnavailableMessage, decode(t, rec)["error"])
		})
	}

	// Health still answers
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestAddContext_Created(t *testing.T) {
	// Given: an empty knowledge base
	kb := &fakeKB{}
	h := NewServer(kb, Options{}).Handler()

	// When: adding a text with metadata
	rec := do(t, h, http.MethodPost, "/add_context", `{"text":"the sky is blue","metadata":{"source":"notes.txt"}}`)

	// Then: 201 with position and metadata passed through
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, false, body["duplicate"])
	assert.Equal(t, float64(0), body["position"])
	assert.Equal(t, map[string]string{"source": "notes.txt"}, kb.lastMetadata)
}

func TestAddContext_DuplicateStillCreated(t *testing.T) {
	kb := &fakeKB{docs: []string{"the sky is blue"}}
	h := NewServer(kb, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/add_context", `{"text":"the sky is blue"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, decode(t, rec)["duplicate"])
	assert.Len(t, kb.docs, 1)
}

func TestAddContext_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing text", `{"metadata":{}}`},
		{"malformed json", `{"text":`},
		{"empty text", `{"text":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(&fakeKB{}, Options{}).Handler()

			rec := do(t, h, http.MethodPost, "/add_context", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestAddContext_PersistFailureIs500(t *testing.T) {
	kb := &fakeKB{addErr: ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to save knowledge base", errors.New("disk full"))}
	h := NewServer(kb, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/add_context", `{"text":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, ragerrors.ErrCodePersistFailed, body["code"])
	assert.Equal(t, "error", body["status"])
}

func TestAddContextBatch(t *testing.T) {
	kb := &fakeKB{}
	h := NewServer(kb, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/add_context/batch", `{"texts":["a","b"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["added"])

	rec = do(t, h, http.MethodPost, "/add_context/batch", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetContext_UsesDefaultsWhenOmitted(t *testing.T) {
	// Given: server defaults k=2, threshold=0.1
	kb := &fakeKB{docs: []string{"a", "b", "c"}}
	h := NewServer(kb, Options{DefaultK: 2, Threshold: 0.1}).Handler()

	// When: querying without k or threshold
	rec := do(t, h, http.MethodPost, "/get_context", `{"query":"a"}`)

	// Then: defaults reach the service
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, kb.lastK)
	assert.InDelta(t, 0.1, kb.lastThreshold, 1e-6)
	assert.Len(t, decode(t, rec)["results"], 2)
}

func TestGetContext_ExplicitKAndThreshold(t *testing.T) {
	kb := &fakeKB{docs: []string{"a", "b", "c"}}
	h := NewServer(kb, Options{DefaultK: 2}).Handler()

	rec := do(t, h, http.MethodPost, "/get_context", `{"query":"a","k":3,"threshold":0.5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, kb.lastK)
	assert.InDelta(t, 0.5, kb.lastThreshold, 1e-6)
}

func TestGetContext_EmptyStoreIsInfo(t *testing.T) {
	h := NewServer(&fakeKB{}, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/get_context", `{"query":"anything"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, rag.StatusInfo, body["status"])
	assert.Equal(t, rag.EmptyStoreMessage, body["message"])
	assert.Empty(t, body["results"])
}

func TestGetContext_Errors(t *testing.T) {
	t.Run("missing query", func(t *testing.T) {
		h := NewServer(&fakeKB{}, Options{}).Handler()
		rec := do(t, h, http.MethodPost, "/get_context", `{"k":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty query", func(t *testing.T) {
		h := NewServer(&fakeKB{}, Options{}).Handler()
		rec := do(t, h, http.MethodPost, "/get_context", `{"query":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, ragerrors.ErrCodeQueryEmpty, decode(t, rec)["code"])
	})

	t.Run("embedding failure", func(t *testing.T) {
		kb := &fakeKB{retrieveErr: ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "failed to embed query", nil)}
		h := NewServer(kb, Options{}).Handler()
		rec := do(t, h, http.MethodPost, "/get_context", `{"query":"x"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestStatsAndStatus(t *testing.T) {
	kb := &fakeKB{docs: []string{"a"}}
	h := NewServer(kb, Options{}).Handler()

	rec := do(t, h, http.MethodGet, "/system/rag/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total_documents"])

	rec = do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, "fake", body["rag"].(map[string]any)["model_name"])
}

func TestClear(t *testing.T) {
	kb := &fakeKB{docs: []string{"a"}}
	h := NewServer(kb, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/system/rag/clear", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, kb.cleared)
	assert.Equal(t, "success", decode(t, rec)["status"])
}

func TestClear_LockFailureIs500(t *testing.T) {
	kb := &fakeKB{clearErr: ragerrors.New(ragerrors.ErrCodeLockFailed, "data directory is locked", nil)}
	h := NewServer(kb, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/system/rag/clear", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ragerrors.ErrCodeLockFailed, decode(t, rec)["code"])
}
