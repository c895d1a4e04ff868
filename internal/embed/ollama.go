package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// OllamaEmbedder produces vectors through a running Ollama server.
type OllamaEmbedder struct {
	cfg       OllamaConfig
	transport *http.Transport
	client    *http.Client
	model     string
	dims      int
	closed    atomic.Bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to cfg.Host, picks the first installed model out
// of cfg.Model and cfg.FallbackModels, and measures its width when
// cfg.Dimensions is zero. With SkipHealthCheck no request is made and
// Dimensions must be set.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	cfg = cfg.withDefaults()

	// Deadlines come from the request context, not http.Client.Timeout.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}
	e := &OllamaEmbedder{
		cfg:       cfg,
		transport: transport,
		client:    &http.Client{Transport: transport},
		model:     cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		if err := e.handshake(ctx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}
	if e.dims == 0 {
		return nil, ragerrors.ConfigError("ollama embedder dimensions unknown; set dimensions or enable the health check", nil)
	}
	return e, nil
}

// handshake resolves the model and, if needed, the vector width.
func (e *OllamaEmbedder) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ConnectTimeout)
	defer cancel()

	installed, err := e.installedModels(ctx)
	if err == nil {
		e.model, err = resolveModel(installed, append([]string{e.cfg.Model}, e.cfg.FallbackModels...))
	}
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeNetworkUnavailable,
			fmt.Sprintf("ollama at %s has no usable embedding model", e.cfg.Host), err)
	}
	if e.dims != 0 {
		return nil
	}

	sample, err := e.request(ctx, []string{"dimension check"})
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeNetworkUnavailable, "failed to detect embedding dimensions", err)
	}
	if len(sample) == 0 || len(sample[0]) == 0 {
		return ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "empty embedding returned", nil)
	}
	e.dims = len(sample[0])
	return nil
}

// resolveModel returns the installed name for the first wanted model.
// Matching ignores case and an omitted tag, so "all-minilm" finds
// "all-minilm:latest".
func resolveModel(installed, wanted []string) (string, error) {
	byName := make(map[string]string, len(installed)*2)
	for _, name := range installed {
		lower := strings.ToLower(name)
		byName[lower] = name
		if _, ok := byName[untagged(lower)]; !ok {
			byName[untagged(lower)] = name
		}
	}
	for _, w := range wanted {
		lower := strings.ToLower(w)
		if name, ok := byName[lower]; ok {
			return name, nil
		}
		if name, ok := byName[untagged(lower)]; ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("none of %v is installed", wanted)
}

func untagged(name string) string {
	base, _, _ := strings.Cut(name, ":")
	return base
}

// Embed returns the vector for one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize inputs. Blank
// texts map to a zero vector and are never sent.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("embedder is closed")
	}

	out := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, e.dims)
			continue
		}
		pending = append(pending, i)
	}

	for chunk := range slices.Chunk(pending, e.cfg.BatchSize) {
		inputs := make([]string, len(chunk))
		for j, i := range chunk {
			inputs[j] = texts[i]
		}
		vecs, err := e.requestWithRetry(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		if len(vecs) != len(chunk) {
			return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(vecs), len(chunk))
		}
		for j, i := range chunk {
			if len(vecs[j]) != e.dims {
				return nil, ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
					fmt.Sprintf("ollama returned %d dims, expected %d", len(vecs[j]), e.dims), nil)
			}
			out[i] = vecs[j]
		}
	}
	return out, nil
}

func (e *OllamaEmbedder) requestWithRetry(ctx context.Context, inputs []string) ([][]float32, error) {
	policy := ragerrors.DefaultRetryConfig()
	policy.MaxRetries = e.cfg.MaxRetries

	return ragerrors.RetryWithResult(ctx, policy, func(attempt int) ([][]float32, error) {
		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
		vecs, err := e.request(reqCtx, inputs)
		if err != nil {
			slog.Debug("ollama_embed_retry",
				slog.Int("attempt", attempt+1),
				slog.Int("inputs", len(inputs)),
				slog.String("error", err.Error()))
		}
		return vecs, err
	})
}

// request performs one /api/embed call. A single input is sent as a bare
// string, which older Ollama builds require.
func (e *OllamaEmbedder) request(ctx context.Context, inputs []string) ([][]float32, error) {
	body := OllamaEmbedRequest{Model: e.model, Input: inputs, Options: e.cfg.Options}
	if len(inputs) == 1 {
		body.Input = inputs[0]
	}

	var resp OllamaEmbedResponse
	if err := e.roundTrip(ctx, http.MethodPost, "/api/embed", body, &resp); err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, raw := range resp.Embeddings {
		vec := make([]float32, len(raw))
		for j, v := range raw {
			vec[j] = float32(v)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (e *OllamaEmbedder) installedModels(ctx context.Context) ([]string, error) {
	var resp OllamaModelListResponse
	if err := e.roundTrip(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, len(resp.Models))
	for i, m := range resp.Models {
		names[i] = m.Name
	}
	return names, nil
}

// roundTrip sends in as JSON (when non-nil) and decodes a 200 reply into out.
func (e *OllamaEmbedder) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.cfg.Host+path, payload)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelName is the installed model name, tag included.
func (e *OllamaEmbedder) ModelName() string { return e.model }

func (e *OllamaEmbedder) Host() string { return e.cfg.Host }

// Available reports whether the server still lists the resolved model.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.closed.Load() {
		return false
	}
	installed, err := e.installedModels(ctx)
	if err != nil {
		return false
	}
	_, err = resolveModel(installed, []string{e.model})
	return err == nil
}

// Close drops pooled connections. Safe to call more than once.
func (e *OllamaEmbedder) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		e.transport.CloseIdleConnections()
	}
	return nil
}
