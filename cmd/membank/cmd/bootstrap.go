package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/membank-io/membank/internal/cache"
	"github.com/membank-io/membank/internal/config"
	"github.com/membank-io/membank/internal/embed"
	"github.com/membank-io/membank/internal/engine"
	"github.com/membank-io/membank/internal/payload"
	"github.com/membank-io/membank/internal/store"
	"github.com/membank-io/membank/internal/telemetry"
)

// shutdownGrace bounds the background-queue drain on close.
const shutdownGrace = 10 * time.Second

// runtime bundles the wired store, index, cache, and engine for one
// command invocation.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	store    *store.Store
	index    *store.HNSWIndex
	engine   *engine.Engine
}

// openRuntime wires the full stack from configuration. Callers own the
// result and must Close it.
func openRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabaseURL), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	idx, err := store.NewHNSWIndex(store.DefaultVectorStoreConfig(cfg.Embedding.Dimension))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	if cfg.VectorStore.Enabled {
		path := vectorFile(cfg)
		if _, statErr := os.Stat(path); statErr == nil {
			if loadErr := idx.Load(path); loadErr != nil {
				// A fresh index plus lazy re-embedding recovers from a
				// corrupt file; losing vectors is not fatal.
				logger.Warn("vector index load failed, starting empty",
					slog.String("path", path),
					slog.String("error", loadErr.Error()))
			}
		}
	}

	provider, err := newEmbedder(cfg)
	if err != nil {
		_ = idx.Close()
		_ = st.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	eng, err := engine.New(st, idx, newCache(cfg, logger), provider,
		engine.WithLogger(logger),
		engine.WithMetrics(telemetry.New(registry)),
		engine.WithPolicy(policyFromConfig(cfg)),
		engine.WithLimits(limitsFromConfig(cfg)),
		engine.WithCacheTTL(time.Duration(cfg.Cache.TTLSeconds)*time.Second),
	)
	if err != nil {
		_ = idx.Close()
		_ = st.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	return &runtime{
		cfg:      cfg,
		log:      logger,
		registry: registry,
		store:    st,
		index:    idx,
		engine:   eng,
	}, nil
}

// Close drains background work, persists the vector index, and closes
// the stores.
func (r *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := r.engine.Stop(ctx); err != nil {
		r.log.Warn("background queue drain timed out", slog.String("error", err.Error()))
	}
	if r.cfg.VectorStore.Enabled {
		path := vectorFile(r.cfg)
		if err := r.index.Save(path); err != nil {
			r.log.Warn("vector index save failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
	_ = r.index.Close()
	if err := r.store.Close(); err != nil {
		r.log.Warn("store close failed", slog.String("error", err.Error()))
	}
}

// vectorFile returns the per-dimension collection file for the
// configured index.
func vectorFile(cfg *config.Config) string {
	return filepath.Join(cfg.VectorStore.Path,
		fmt.Sprintf("memories-%d.hnsw", cfg.Embedding.Dimension))
}

// newCache picks Redis when configured and reachable, the in-process
// LRU otherwise.
func newCache(cfg *config.Config, logger *slog.Logger) cache.Cache {
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	if cfg.Cache.Enabled {
		rc, err := cache.NewRedis(cfg.Cache.Host, cfg.Cache.Port, logger)
		if err == nil {
			return rc
		}
		logger.Warn("redis unreachable, using in-process cache",
			slog.String("error", err.Error()))
	}
	return cache.NewMemory(1024, ttl)
}

// newEmbedder builds the configured embedding provider.
func newEmbedder(cfg *config.Config) (embed.Provider, error) {
	switch cfg.Embedding.Provider {
	case "remote":
		provider, err := embed.NewRemoteEmbedder(embed.RemoteConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("build remote embedder: %w", err)
		}
		return provider, nil
	default:
		return embed.NewLocalEmbedder(), nil
	}
}

func policyFromConfig(cfg *config.Config) payload.Policy {
	return payload.Policy{
		Algorithm:          cfg.Storage.Compression.Algorithm,
		CompressionEnabled: cfg.Storage.Compression.Enabled,
		MinCompressBytes:   cfg.Storage.Compression.MinBytes,
		ChunkingEnabled:    cfg.Storage.Chunking.Enabled,
		ChunkThreshold:     cfg.Storage.Chunking.ThresholdBytes,
		ChunkSize:          cfg.Storage.Chunking.ChunkBytes,
	}
}

func limitsFromConfig(cfg *config.Config) engine.Limits {
	return engine.Limits{
		MaxContentBytes: int64(cfg.Limits.MaxContentBytes),
		TopKMultiplier:  cfg.Limits.SemanticTopKMultiplier,
	}
}
