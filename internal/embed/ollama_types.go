package embed

import (
	"maps"
	"strings"
	"time"
)

const (
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is Ollama's packaging of all-MiniLM-L6-v2, 384 dims.
	DefaultOllamaModel = "all-minilm"

	OllamaConnectTimeout = 10 * time.Second
	OllamaPoolSize       = 4
)

// FallbackOllamaModels are accepted, in order, when the configured model
// has not been pulled.
var FallbackOllamaModels = []string{
	"nomic-embed-text",
	"mxbai-embed-large",
}

// OllamaConfig describes one Ollama endpoint and how to talk to it.
type OllamaConfig struct {
	Host           string
	Model          string
	FallbackModels []string

	// Options is sent verbatim as the request "options" object.
	// {"num_gpu": 0} pins the model to the CPU.
	Options map[string]any

	// Dimensions skips probing when non-zero.
	Dimensions int

	BatchSize      int
	Timeout        time.Duration // per request
	ConnectTimeout time.Duration // model resolution and width check
	MaxRetries     int
	PoolSize       int

	// SkipHealthCheck trusts Model and Dimensions without contacting the host.
	SkipHealthCheck bool
}

// DefaultOllamaConfig targets a local Ollama with the default model.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		FallbackModels: FallbackOllamaModels,
		BatchSize:      DefaultBatchSize,
		Timeout:        DefaultTimeout,
		ConnectTimeout: OllamaConnectTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       OllamaPoolSize,
	}
}

// withDefaults fills zero fields and clamps the batch size.
func (c OllamaConfig) withDefaults() OllamaConfig {
	if c.Host == "" {
		c.Host = DefaultOllamaHost
	}
	c.Host = strings.TrimRight(c.Host, "/")
	if c.Model == "" {
		c.Model = DefaultOllamaModel
	}
	if c.FallbackModels == nil {
		c.FallbackModels = FallbackOllamaModels
	}
	switch {
	case c.BatchSize <= 0:
		c.BatchSize = DefaultBatchSize
	case c.BatchSize > MaxBatchSize:
		c.BatchSize = MaxBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = OllamaConnectTimeout
	}
	c.MaxRetries = max(c.MaxRetries, 0)
	if c.PoolSize <= 0 {
		c.PoolSize = OllamaPoolSize
	}
	return c
}

// CPUOllamaConfig derives the CPU-only variant of cfg, optionally on another
// host. The provider chain tries it after the primary endpoint fails.
func CPUOllamaConfig(cfg OllamaConfig, host string) OllamaConfig {
	if host != "" {
		cfg.Host = host
	}
	opts := maps.Clone(cfg.Options)
	if opts == nil {
		opts = make(map[string]any, 1)
	}
	opts["num_gpu"] = 0
	cfg.Options = opts
	return cfg
}

// Wire types for /api/embed and /api/tags.

type OllamaEmbedRequest struct {
	Model   string         `json:"model"`
	Input   any            `json:"input"` // string, or []string for a batch
	Options map[string]any `json:"options,omitempty"`
}

type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

type OllamaModelInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}
