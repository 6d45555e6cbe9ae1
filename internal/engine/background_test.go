package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membank-io/membank/internal/async"
	"github.com/membank-io/membank/internal/cache"
	"github.com/membank-io/membank/internal/embed"
	"github.com/membank-io/membank/internal/store"
)

func TestEngine_AutoRelateLinksNearDuplicates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	existing := mustCreate(t, e, 1, "Feline care", "cats purr soft fur friendly pets")
	drain(t, e)

	// The twin auto-relates against the indexed corpus.
	twin, err := e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID:    1,
		Title:      "Feline care",
		Content:    []byte("cats purr soft fur friendly pets"),
		AutoRelate: true,
	})
	require.NoError(t, err)

	rels, err := e.GetMemoryRelations(ctx, 1, twin.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "similar_to", rels[0].Type)
	assert.Equal(t, twin.ID, rels[0].SourceID)
	assert.Equal(t, existing.ID, rels[0].TargetID)
	assert.GreaterOrEqual(t, rels[0].Strength, 0.7)
}

func TestEngine_AutoRelateSkipsUnrelated(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, e, 1, "Tax season", "quarterly revenue ledger filings")
	drain(t, e)

	m, err := e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID:    1,
		Title:      "Feline care",
		Content:    []byte("cats purr soft fur friendly pets"),
		AutoRelate: true,
	})
	require.NoError(t, err)

	// Nothing clears the default threshold, so no edges appear.
	rels, err := e.GetMemoryRelations(ctx, 1, m.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestEngine_ReconcileRestoresLostVectors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "kept", "body text")
	drain(t, e)
	require.True(t, e.index.Contains(m.ID))

	// Simulate index loss for a record already marked embedded.
	require.NoError(t, e.index.Delete(ctx, m.ID))
	require.False(t, e.index.Contains(m.ID))

	require.NoError(t, e.reconcile(ctx))
	drain(t, e)
	assert.True(t, e.index.Contains(m.ID))
}

func TestEngine_ReconcilePrunesStaleVectors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "doomed", "body text")
	drain(t, e)
	require.True(t, e.index.Contains(m.ID))

	// Soft-delete behind the engine's back, as if the delete job had
	// been lost to a crash.
	require.NoError(t, e.store.Memories.SoftDelete(ctx, m.ID))

	require.NoError(t, e.reconcile(ctx))
	drain(t, e)
	assert.False(t, e.index.Contains(m.ID))
}

func TestEngine_ReconcileEmbedsPendingBacklog(t *testing.T) {
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	idx, err := store.NewHNSWIndex(store.DefaultVectorStoreConfig(embed.LocalDimensions))
	require.NoError(t, err)

	e, err := New(st, idx, cache.NewMemory(64, time.Minute), embed.NewLocalEmbedder(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	// Writes land while the worker is down; embeddings stay pending.
	ctx := context.Background()
	a := mustCreate(t, e, 1, "first", "alpha content")
	b := mustCreate(t, e, 1, "second", "beta content")
	assert.False(t, e.index.Contains(a.ID))
	assert.False(t, e.index.Contains(b.ID))

	// Startup runs the reconciler and the worker catches up.
	e.Start(ctx)
	t.Cleanup(func() { _ = e.Stop(context.Background()) })
	drain(t, e)

	assert.True(t, e.index.Contains(a.ID))
	assert.True(t, e.index.Contains(b.ID))

	got, err := e.GetMemory(ctx, 1, a.ID, false)
	require.NoError(t, err)
	assert.True(t, got.Embedded)
}

func TestEngine_ReindexRebuildsFromScratch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	ids := []int64{
		mustCreate(t, e, 1, "one", "first body").ID,
		mustCreate(t, e, 1, "two", "second body").ID,
		mustCreate(t, e, 1, "three", "third body").ID,
	}
	drain(t, e)

	require.NoError(t, e.index.Clear())
	for _, id := range ids {
		require.False(t, e.index.Contains(id))
	}

	p := async.NewProgress()
	n, err := e.Reindex(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snap := p.Snapshot()
	assert.Equal(t, async.StageReady, snap.Stage)
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 3, snap.Processed)
	assert.Equal(t, 0, snap.Failed)

	for _, id := range ids {
		assert.True(t, e.index.Contains(id))
	}
}

func TestEngine_ReindexDropsCorrupted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	good := mustCreate(t, e, 1, "good", "clean body")
	bad := mustCreate(t, e, 1, "bad", "will be damaged")
	drain(t, e)

	err := e.store.Memories.ReplaceContent(ctx, bad.ID, store.PayloadRecord{
		Content:       []byte("tampered"),
		Codec:         "none",
		ContentHash:   "0000",
		OriginalBytes: 8,
	}, store.MemoryPatch{})
	require.NoError(t, err)

	n, err := e.Reindex(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.True(t, e.index.Contains(good.ID))
	assert.False(t, e.index.Contains(bad.ID))

	// The unreadable payload got flagged along the way.
	got, err := e.GetMemory(ctx, 1, bad.ID, false)
	require.NoError(t, err)
	assert.True(t, got.Corrupted)
}

func TestEngine_ReindexNothingToDo(t *testing.T) {
	e := newTestEngine(t)

	n, err := e.Reindex(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
