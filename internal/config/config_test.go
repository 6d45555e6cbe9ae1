package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	assert.NotEmpty(t, cfg.DatabaseURL)
	assert.True(t, cfg.VectorStore.Enabled)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, "adaptive", cfg.Storage.Compression.Algorithm)
	assert.Equal(t, 1024, cfg.Storage.Compression.MinBytes)
	assert.Equal(t, 64*1024, cfg.Storage.Chunking.ThresholdBytes)
	assert.Equal(t, 32*1024, cfg.Storage.Chunking.ChunkBytes)
	assert.Equal(t, 10*1024*1024, cfg.Limits.MaxContentBytes)
	assert.Equal(t, 4, cfg.Limits.SemanticTopKMultiplier)
	assert.Equal(t, int64(1), cfg.Auth.DefaultOwnerID)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
databaseUrl: /data/membank.db
cache:
  enabled: true
  host: cache.internal
storage:
  compression:
    enabled: true
    algorithm: zstd
    minBytes: 2048
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/membank.db", cfg.DatabaseURL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "cache.internal", cfg.Cache.Host)
	assert.Equal(t, "zstd", cfg.Storage.Compression.Algorithm)
	assert.Equal(t, 2048, cfg.Storage.Compression.MinBytes)
	// Absent keys keep defaults.
	assert.Equal(t, 6379, cfg.Cache.Port)
	assert.Equal(t, 32*1024, cfg.Storage.Chunking.ChunkBytes)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("databaseUrl: /from/file.db\n"), 0o644))

	t.Setenv("MEMBANK_DATABASE_URL", "/from/env.db")
	t.Setenv("MEMBANK_CACHE_ENABLED", "true")
	t.Setenv("MEMBANK_EMBEDDING_DIMENSION", "768")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env.db", cfg.DatabaseURL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
}

func TestSecretsComeFromEnvOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	// A jwtSecret key in the file must be ignored: the field is yaml:"-".
	body := "auth:\n  defaultOwnerId: 7\n  jwtSecret: file-secret-should-be-ignored-entirely\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Auth.DefaultOwnerID)
	assert.Empty(t, cfg.Auth.JWTSecret)

	t.Setenv("MEMBANK_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Auth.JWTSecret)
	assert.NoError(t, cfg.ValidateAuth())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database url", func(c *Config) { c.DatabaseURL = "" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "quantum" }},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"unknown codec", func(c *Config) { c.Storage.Compression.Algorithm = "lz4" }},
		{"threshold below chunk", func(c *Config) {
			c.Storage.Chunking.ThresholdBytes = 1024
			c.Storage.Chunking.ChunkBytes = 4096
		}},
		{"zero content limit", func(c *Config) { c.Limits.MaxContentBytes = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAuthEnforcesSecretFloor(t *testing.T) {
	cfg := New()
	cfg.Auth.JWTSecret = "short"
	assert.Error(t, cfg.ValidateAuth())

	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.ValidateAuth())
}

func TestRemoteProviderRequiresKeyOrBaseURL(t *testing.T) {
	cfg := New()
	cfg.Embedding.Provider = "remote"
	assert.Error(t, cfg.Validate())

	cfg.Embedding.BaseURL = "http://localhost:11434/v1"
	assert.NoError(t, cfg.Validate())

	cfg.Embedding.BaseURL = ""
	cfg.Embedding.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := New()
	cfg.DatabaseURL = "/data/db.sqlite"
	cfg.Auth.JWTSecret = "must-not-reach-disk-0123456789abcdef"
	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "must-not-reach-disk")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/db.sqlite", loaded.DatabaseURL)
}
