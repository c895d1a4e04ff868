// Package config loads amanrag configuration from defaults, YAML files and
// AMANRAG_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// ProjectConfigName is the config file looked up in the working directory.
const ProjectConfigName = "amanrag.yaml"

// Config represents the complete amanrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
}

// StorageConfig locates and shapes the persisted knowledge base.
type StorageConfig struct {
	DataDir          string `yaml:"data_dir" json:"data_dir"`
	IndexKind        string `yaml:"index_kind" json:"index_kind"`
	RepairOnMismatch bool   `yaml:"repair_on_mismatch" json:"repair_on_mismatch"`
}

// EmbeddingsConfig configures the embedding provider chain.
type EmbeddingsConfig struct {
	// Provider is auto (ollama, ollama-cpu, tfidf), ollama, or tfidf.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	SecondaryHost string `yaml:"secondary_host" json:"secondary_host"`

	// Timeout is a duration string for each embedding request (e.g. "60s").
	Timeout string `yaml:"timeout" json:"timeout"`

	FallbackDimensions int  `yaml:"fallback_dimensions" json:"fallback_dimensions"`
	CacheSize          int  `yaml:"cache_size" json:"cache_size"`
	DisableCache       bool `yaml:"disable_cache" json:"disable_cache"`
}

// RetrievalConfig sets retrieve defaults for the façades.
type RetrievalConfig struct {
	DefaultK  int     `yaml:"default_k" json:"default_k"`
	Threshold float32 `yaml:"threshold" json:"threshold"`
}

// ServerConfig configures the HTTP server and logging.
type ServerConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// WatchConfig configures the inbox watcher.
type WatchConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Dir      string   `yaml:"dir" json:"dir"`
	Debounce string   `yaml:"debounce" json:"debounce"`
	Exts     []string `yaml:"extensions" json:"extensions"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			DataDir:   filepath.Join("data", "rag"),
			IndexKind: string(store.IndexFlat),
		},
		Embeddings: EmbeddingsConfig{
			Provider:           string(embed.ProviderAuto),
			Model:              embed.DefaultOllamaModel,
			OllamaHost:         embed.DefaultOllamaHost,
			SecondaryHost:      "", // Empty reuses ollama_host
			Timeout:            "60s",
			FallbackDimensions: embed.FallbackDimensions,
			CacheSize:          embed.DefaultEmbeddingCacheSize,
		},
		Retrieval: RetrievalConfig{
			DefaultK:  3,
			Threshold: 0,
		},
		Server: ServerConfig{
			Addr:     ":5000",
			LogLevel: "info",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Dir:      "inbox",
			Debounce: "500ms",
			Exts:     []string{".txt", ".md"},
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/amanrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amanrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanrag", "config.yaml")
}

// Load loads configuration for the given working directory.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/amanrag/config.yaml)
//  3. Project config (amanrag.yaml in dir)
//  4. Environment variables (AMANRAG_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if projectPath := filepath.Join(dir, ProjectConfigName); fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults, then path, then environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values; keys absent from the file
// keep whatever c already holds.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies AMANRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANRAG_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("AMANRAG_INDEX_KIND"); v != "" {
		c.Storage.IndexKind = v
	}
	if v := os.Getenv("AMANRAG_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("AMANRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("AMANRAG_OLLAMA_SECONDARY_HOST"); v != "" {
		c.Embeddings.SecondaryHost = v
	}
	if v := os.Getenv("AMANRAG_OLLAMA_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AMANRAG_OLLAMA_TIMEOUT"); v != "" {
		c.Embeddings.Timeout = v
	}
	if v := os.Getenv("AMANRAG_DEFAULT_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.DefaultK = k
		}
	}
	if v := os.Getenv("AMANRAG_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AMANRAG_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("AMANRAG_WATCH_DIR"); v != "" {
		c.Watch.Dir = v
		c.Watch.Enabled = true
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if _, err := store.ParseIndexKind(c.Storage.IndexKind); err != nil {
		return fmt.Errorf("storage.index_kind: %w", err)
	}
	if _, err := embed.ParseProvider(c.Embeddings.Provider); err != nil {
		return fmt.Errorf("embeddings.provider: %w", err)
	}
	if c.Embeddings.Timeout != "" {
		if d, err := time.ParseDuration(c.Embeddings.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("embeddings.timeout must be a positive duration, got %q", c.Embeddings.Timeout)
		}
	}
	if c.Embeddings.FallbackDimensions <= 0 {
		return fmt.Errorf("embeddings.fallback_dimensions must be positive, got %d", c.Embeddings.FallbackDimensions)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}
	if c.Retrieval.DefaultK <= 0 {
		return fmt.Errorf("retrieval.default_k must be positive, got %d", c.Retrieval.DefaultK)
	}
	if c.Retrieval.Threshold < 0 {
		return fmt.Errorf("retrieval.threshold must be non-negative, got %f", c.Retrieval.Threshold)
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("watch.debounce must be a duration, got %q", c.Watch.Debounce)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// EmbedOptions converts the embeddings section for embed.NewEmbedder.
// Call after Validate.
func (c *Config) EmbedOptions() embed.Options {
	provider, _ := embed.ParseProvider(c.Embeddings.Provider)
	timeout, _ := time.ParseDuration(c.Embeddings.Timeout)
	return embed.Options{
		Provider:           provider,
		OllamaHost:         c.Embeddings.OllamaHost,
		SecondaryHost:      c.Embeddings.SecondaryHost,
		Model:              c.Embeddings.Model,
		Timeout:            timeout,
		FallbackDimensions: c.Embeddings.FallbackDimensions,
		CacheSize:          c.Embeddings.CacheSize,
		DisableCache:       c.Embeddings.DisableCache,
	}
}

// IndexKind returns the parsed storage.index_kind. Call after Validate.
func (c *Config) IndexKind() store.IndexKind {
	kind, _ := store.ParseIndexKind(c.Storage.IndexKind)
	return kind
}

// WatchDebounce returns the parsed watch.debounce, or 500ms.
func (c *Config) WatchDebounce() time.Duration {
	if d, err := time.ParseDuration(c.Watch.Debounce); err == nil && d > 0 {
		return d
	}
	return 500 * time.Millisecond
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
