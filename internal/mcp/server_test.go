package mcp

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membank-io/membank/internal/cache"
	"github.com/membank-io/membank/internal/config"
	"github.com/membank-io/membank/internal/embed"
	"github.com/membank-io/membank/internal/engine"
	"github.com/membank-io/membank/internal/store"
)

// newTestServer wires an MCP server over a real engine backed by an
// in-memory database and the local embedder.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := store.NewHNSWIndex(store.DefaultVectorStoreConfig(embed.LocalDimensions))
	require.NoError(t, err)

	eng, err := engine.New(st, idx, cache.NewMemory(256, time.Minute), embed.NewLocalEmbedder(),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	eng.Start(context.Background())
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	s, err := NewServer(eng, config.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

// drainQueue waits for pending embedding jobs to finish.
func drainQueue(t *testing.T, s *Server) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.engine.QueueDepth() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("embedding queue did not drain")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(nil, config.New(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine is required")
}

func TestNewServer_DefaultOwner(t *testing.T) {
	s := newTestServer(t)

	// auth.defaultOwnerId is 1 out of the box
	assert.Equal(t, int64(1), s.OwnerID())
	assert.NotNil(t, s.MCPServer())
}

func TestNewServer_ConfiguredOwner(t *testing.T) {
	base := newTestServer(t)

	cfg := config.New()
	cfg.Auth.DefaultOwnerID = 42
	s, err := NewServer(base.engine, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.OwnerID())
}

func TestNewServer_NilConfigFallsBack(t *testing.T) {
	base := newTestServer(t)

	s, err := NewServer(base.engine, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.OwnerID())
}
