package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderAuto runs the full chain: ollama, ollama-cpu, tfidf.
	ProviderAuto ProviderType = "auto"

	// ProviderOllama uses the Ollama API only (primary host, then CPU-only secondary).
	ProviderOllama ProviderType = "ollama"

	// ProviderTFIDF forces the in-process statistical fallback.
	ProviderTFIDF ProviderType = "tfidf"
)

// Factory names, as reported in Selection and stats.
const (
	FactoryOllama    = "ollama"
	FactoryOllamaCPU = "ollama-cpu"
	FactoryTFIDF     = "tfidf"
)

// ParseProvider validates a provider name. Empty means auto.
func ParseProvider(s string) (ProviderType, error) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProviderAuto:
		return ProviderAuto, nil
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderTFIDF, "fallback", "static":
		return ProviderTFIDF, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (want auto, ollama or tfidf)", s)
	}
}

// Factory builds one candidate embedder.
type Factory struct {
	// Name identifies the attempt ("ollama", "ollama-cpu", "tfidf").
	Name string
	// Provider is the provider family the embedder belongs to.
	Provider ProviderType
	// Fallback marks the statistical embedder.
	Fallback bool
	// New constructs the embedder or reports why it cannot.
	New func(ctx context.Context) (Embedder, error)
}

// Attempt records one failed factory.
type Attempt struct {
	Name string
	Err  error
}

// Selection is the outcome of Select.
type Selection struct {
	Embedder Embedder
	Name     string
	Provider ProviderType
	Fallback bool
	Attempts []Attempt
}

// Fitter returns the selected embedder's Fitter, if it needs fitting.
func (s *Selection) Fitter() (Fitter, bool) {
	f, ok := s.Embedder.(Fitter)
	return f, ok
}

// Select tries factories in order and returns the first that constructs.
// Every failure is recorded as an Attempt; if none succeed the error is
// ERR_104_NO_EMBEDDER.
func Select(ctx context.Context, factories []Factory) (*Selection, error) {
	var attempts []Attempt
	for _, f := range factories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		emb, err := f.New(ctx)
		if err != nil {
			slog.Warn("embedder_unavailable",
				slog.String("provider", f.Name),
				slog.String("error", err.Error()))
			attempts = append(attempts, Attempt{Name: f.Name, Err: err})
			continue
		}

		slog.Info("embedder_selected",
			slog.String("provider", f.Name),
			slog.String("model", emb.ModelName()),
			slog.Int("dimensions", emb.Dimensions()),
			slog.Bool("fallback", f.Fallback),
			slog.Int("failed_attempts", len(attempts)))

		return &Selection{
			Embedder: emb,
			Name:     f.Name,
			Provider: f.Provider,
			Fallback: f.Fallback,
			Attempts: attempts,
		}, nil
	}

	names := make([]string, 0, len(attempts))
	for _, a := range attempts {
		names = append(names, fmt.Sprintf("%s: %v", a.Name, a.Err))
	}
	err := ragerrors.New(ragerrors.ErrCodeNoEmbedder, "no embedding provider could be initialized", nil).
		WithSuggestion("Start Ollama (ollama serve && ollama pull all-minilm) or set embeddings.provider: tfidf")
	if len(names) > 0 {
		err = err.WithDetail("attempts", strings.Join(names, "; "))
	}
	return nil, err
}

// Options configures the default provider chain.
type Options struct {
	Provider           ProviderType
	OllamaHost         string
	SecondaryHost      string
	Model              string
	Timeout            time.Duration
	FallbackDimensions int
	CacheSize          int
	DisableCache       bool
}

// DefaultFactories builds the chain for opts.Provider. AMANRAG_EMBEDDER, when
// set to a valid provider, replaces opts.Provider.
func DefaultFactories(opts Options) []Factory {
	provider := opts.Provider
	if env := os.Getenv("AMANRAG_EMBEDDER"); env != "" {
		if p, err := ParseProvider(env); err == nil {
			provider = p
		} else {
			slog.Warn("invalid_embedder_override", slog.String("value", env))
		}
	}
	if provider == "" {
		provider = ProviderAuto
	}

	base := DefaultOllamaConfig()
	if opts.OllamaHost != "" {
		base.Host = opts.OllamaHost
	}
	if opts.Model != "" {
		base.Model = opts.Model
	}
	if opts.Timeout > 0 {
		base.Timeout = opts.Timeout
	}

	ollama := func(name string, cfg OllamaConfig) Factory {
		return Factory{
			Name:     name,
			Provider: ProviderOllama,
			New: func(ctx context.Context) (Embedder, error) {
				e, err := NewOllamaEmbedder(ctx, cfg)
				if err != nil {
					return nil, err
				}
				if opts.DisableCache || isCacheDisabled() {
					return e, nil
				}
				return NewCachedEmbedder(e, opts.CacheSize), nil
			},
		}
	}
	tfidf := Factory{
		Name:     FactoryTFIDF,
		Provider: ProviderTFIDF,
		Fallback: true,
		New: func(context.Context) (Embedder, error) {
			return NewTFIDFEmbedder(opts.FallbackDimensions), nil
		},
	}

	network := []Factory{
		ollama(FactoryOllama, base),
		ollama(FactoryOllamaCPU, CPUOllamaConfig(base, opts.SecondaryHost)),
	}

	switch provider {
	case ProviderOllama:
		return network
	case ProviderTFIDF:
		return []Factory{tfidf}
	default:
		return append(network, tfidf)
	}
}

// NewEmbedder selects an embedder from the default chain for opts.
func NewEmbedder(ctx context.Context, opts Options) (*Selection, error) {
	return Select(ctx, DefaultFactories(opts))
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("AMANRAG_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}
