// Package config loads membank configuration from YAML with environment
// overrides. Precedence, lowest to highest: built-in defaults, the config
// file, MEMBANK_* environment variables. Secrets (JWT secret, embedding
// API key) are accepted from the environment only and never read from or
// written to the config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete membank configuration.
type Config struct {
	// DatabaseURL is the path to the primary SQLite store.
	DatabaseURL string            `yaml:"databaseUrl"`
	VectorStore VectorStoreConfig `yaml:"vectorStore"`
	Cache       CacheConfig       `yaml:"cache"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Storage     StorageConfig     `yaml:"storage"`
	Auth        AuthConfig        `yaml:"auth"`
	Limits      LimitsConfig      `yaml:"limits"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// VectorStoreConfig configures the HNSW vector index.
type VectorStoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CacheConfig configures the query cache. When disabled (or when Redis is
// unreachable) the engine falls back to an in-process LRU.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedder: local or remote.
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	// BaseURL points the remote provider at an OpenAI-compatible endpoint.
	BaseURL string `yaml:"baseUrl"`
	// APIKey is environment-only (MEMBANK_EMBEDDING_API_KEY).
	APIKey string `yaml:"-"`
}

// StorageConfig configures the payload pipeline.
type StorageConfig struct {
	Compression CompressionConfig `yaml:"compression"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
}

// CompressionConfig selects the payload codec.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled"`
	// Algorithm is none, zstd, or adaptive.
	Algorithm string `yaml:"algorithm"`
	// MinBytes is the adaptive floor: smaller payloads stay raw.
	MinBytes int `yaml:"minBytes"`
}

// ChunkingConfig selects when and how payloads are split.
type ChunkingConfig struct {
	Enabled        bool `yaml:"enabled"`
	ThresholdBytes int  `yaml:"thresholdBytes"`
	ChunkBytes     int  `yaml:"chunkBytes"`
}

// AuthConfig configures authentication.
type AuthConfig struct {
	// DefaultOwnerID is the owner the MCP stdio server acts as.
	DefaultOwnerID int64 `yaml:"defaultOwnerId"`
	// JWTSecret is environment-only (MEMBANK_JWT_SECRET), minimum 32 bytes.
	JWTSecret string `yaml:"-"`
}

// LimitsConfig bounds request sizes and fan-out.
type LimitsConfig struct {
	MaxContentBytes        int `yaml:"maxContentBytes"`
	SemanticTopKMultiplier int `yaml:"semanticTopKMultiplier"`
}

// HTTPConfig configures the REST server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"filePath"`
	MaxSizeMB int    `yaml:"maxSizeMB"`
	MaxFiles  int    `yaml:"maxFiles"`
}

// DefaultDataDir returns ~/.membank, or a temp fallback without a home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".membank")
	}
	return filepath.Join(home, ".membank")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// New returns the built-in defaults.
func New() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DatabaseURL: filepath.Join(dataDir, "membank.db"),
		VectorStore: VectorStoreConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "vectors"),
		},
		Cache: CacheConfig{
			Enabled:    false,
			Host:       "localhost",
			Port:       6379,
			TTLSeconds: 3600,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Dimension: 384,
		},
		Storage: StorageConfig{
			Compression: CompressionConfig{
				Enabled:   true,
				Algorithm: "adaptive",
				MinBytes:  1024,
			},
			Chunking: ChunkingConfig{
				Enabled:        true,
				ThresholdBytes: 64 * 1024,
				ChunkBytes:     32 * 1024,
			},
		},
		Auth: AuthConfig{
			DefaultOwnerID: 1,
		},
		Limits: LimitsConfig{
			MaxContentBytes:        10 * 1024 * 1024,
			SemanticTopKMultiplier: 4,
		},
		HTTP: HTTPConfig{
			Addr: ":8750",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// Load reads configuration from path (empty means the default location),
// applies environment overrides, and validates the result. A missing file
// is not an error; defaults plus environment apply. File values are
// unmarshaled over the defaults, so absent keys keep their default.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = DefaultConfigPath()
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies MEMBANK_* environment variables, the highest
// precedence layer. Secrets are only ever sourced here.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMBANK_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("MEMBANK_VECTOR_PATH"); v != "" {
		c.VectorStore.Path = v
	}
	if v := os.Getenv("MEMBANK_VECTOR_ENABLED"); v != "" {
		c.VectorStore.Enabled = isTrue(v)
	}
	if v := os.Getenv("MEMBANK_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = isTrue(v)
	}
	if v := os.Getenv("MEMBANK_CACHE_HOST"); v != "" {
		c.Cache.Host = v
	}
	if v := os.Getenv("MEMBANK_CACHE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Cache.Port = p
		}
	}
	if v := os.Getenv("MEMBANK_CACHE_TTL_SECONDS"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil && ttl > 0 {
			c.Cache.TTLSeconds = ttl
		}
	}
	if v := os.Getenv("MEMBANK_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("MEMBANK_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("MEMBANK_EMBEDDING_DIMENSION"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embedding.Dimension = d
		}
	}
	if v := os.Getenv("MEMBANK_EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("MEMBANK_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("MEMBANK_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("MEMBANK_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("MEMBANK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MEMBANK_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

// Validate checks ranges and enumerations on the final configuration.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("databaseUrl is required")
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "local", "remote":
	default:
		return fmt.Errorf("embedding.provider must be 'local' or 'remote', got %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "remote" && c.Embedding.APIKey == "" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("remote embedding requires MEMBANK_EMBEDDING_API_KEY or embedding.baseUrl")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}

	switch strings.ToLower(c.Storage.Compression.Algorithm) {
	case "none", "zstd", "adaptive":
	default:
		return fmt.Errorf("storage.compression.algorithm must be 'none', 'zstd', or 'adaptive', got %q", c.Storage.Compression.Algorithm)
	}
	if c.Storage.Chunking.ChunkBytes <= 0 {
		return fmt.Errorf("storage.chunking.chunkBytes must be positive, got %d", c.Storage.Chunking.ChunkBytes)
	}
	if c.Storage.Chunking.ThresholdBytes < c.Storage.Chunking.ChunkBytes {
		return fmt.Errorf("storage.chunking.thresholdBytes (%d) must be at least chunkBytes (%d)",
			c.Storage.Chunking.ThresholdBytes, c.Storage.Chunking.ChunkBytes)
	}

	if c.Limits.MaxContentBytes <= 0 {
		return fmt.Errorf("limits.maxContentBytes must be positive, got %d", c.Limits.MaxContentBytes)
	}
	if c.Limits.SemanticTopKMultiplier <= 0 {
		return fmt.Errorf("limits.semanticTopKMultiplier must be positive, got %d", c.Limits.SemanticTopKMultiplier)
	}

	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttlSeconds must be positive, got %d", c.Cache.TTLSeconds)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}

	return nil
}

// ValidateAuth enforces the JWT secret floor. Called by surfaces that
// issue or verify tokens; the MCP stdio path does not need it.
func (c *Config) ValidateAuth() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("MEMBANK_JWT_SECRET must be at least 32 bytes, got %d", len(c.Auth.JWTSecret))
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file. Secrets carry the
// `yaml:"-"` tag and never reach disk.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
