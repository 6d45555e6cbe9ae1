package engine

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membank-io/membank/internal/async"
	"github.com/membank-io/membank/internal/cache"
	"github.com/membank-io/membank/internal/embed"
	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/store"
)

// newTestEngine wires an engine against an in-memory database, an HNSW
// index sized for the local embedder, and an in-process cache. The
// background worker is started and torn down with the test.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := store.NewHNSWIndex(store.DefaultVectorStoreConfig(embed.LocalDimensions))
	require.NoError(t, err)

	e, err := New(st, idx, cache.NewMemory(256, time.Minute), embed.NewLocalEmbedder(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	e.Start(context.Background())
	t.Cleanup(func() { _ = e.Stop(context.Background()) })
	return e
}

// drain waits for every queued background job to finish.
func drain(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.queue.Drain(ctx))
}

func mustCreate(t *testing.T, e *Engine, owner int64, title, content string) *Memory {
	t.Helper()
	m, err := e.CreateMemory(context.Background(), CreateMemoryInput{
		OwnerID: owner,
		Title:   title,
		Content: []byte(content),
	})
	require.NoError(t, err)
	return m
}

func TestEngine_CreateAndGetRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Given: a memory with explicit fields
	created, err := e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID:     1,
		Title:       "meeting notes",
		Content:     []byte("discussed the rollout plan"),
		Category:    "planning",
		Tags:        []string{"rollout", "q3"},
		Metadata:    map[string]string{"source": "standup"},
		AccessLevel: "public",
		Importance:  8,
	})
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.Equal(t, "inline", created.StorageMode)
	assert.Equal(t, int64(26), created.OriginalBytes)

	// When: reading it back with the payload
	got, err := e.GetMemory(ctx, 1, created.ID, true)
	require.NoError(t, err)

	// Then: every field round-trips
	assert.Equal(t, "meeting notes", got.Title)
	assert.Equal(t, []byte("discussed the rollout plan"), got.Content)
	assert.Equal(t, "planning", got.Category)
	assert.Equal(t, []string{"rollout", "q3"}, got.Tags)
	assert.Equal(t, "standup", got.Metadata["source"])
	assert.Equal(t, "public", got.AccessLevel)
	assert.Equal(t, 8.0, got.Importance)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestEngine_CreateDefaults(t *testing.T) {
	e := newTestEngine(t)

	// Given: a create with only the required fields
	m := mustCreate(t, e, 1, "bare", "just text")

	// Then: importance and access level take their defaults
	assert.Equal(t, 5.0, m.Importance)
	assert.Equal(t, "private", m.AccessLevel)
	assert.Nil(t, m.ContextID)
	assert.False(t, m.Embedded)
}

func TestEngine_CreateValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	longTitle := make([]rune, 501)
	for i := range longTitle {
		longTitle[i] = 'x'
	}
	manyTags := make([]string, 33)
	for i := range manyTags {
		manyTags[i] = "t"
	}
	huge := make([]byte, int(DefaultLimits().MaxContentBytes)+1)

	tests := []struct {
		name string
		in   CreateMemoryInput
	}{
		{"empty title", CreateMemoryInput{OwnerID: 1, Content: []byte("x")}},
		{"blank title", CreateMemoryInput{OwnerID: 1, Title: "   ", Content: []byte("x")}},
		{"title too long", CreateMemoryInput{OwnerID: 1, Title: string(longTitle), Content: []byte("x")}},
		{"empty content", CreateMemoryInput{OwnerID: 1, Title: "t"}},
		{"content too large", CreateMemoryInput{OwnerID: 1, Title: "t", Content: huge}},
		{"importance too low", CreateMemoryInput{OwnerID: 1, Title: "t", Content: []byte("x"), Importance: 0.5}},
		{"importance too high", CreateMemoryInput{OwnerID: 1, Title: "t", Content: []byte("x"), Importance: 11}},
		{"bad access level", CreateMemoryInput{OwnerID: 1, Title: "t", Content: []byte("x"), AccessLevel: "secret"}},
		{"too many tags", CreateMemoryInput{OwnerID: 1, Title: "t", Content: []byte("x"), Tags: manyTags}},
		{"bad owner", CreateMemoryInput{OwnerID: 0, Title: "t", Content: []byte("x")}},
		{"bad relate threshold", CreateMemoryInput{OwnerID: 1, Title: "t", Content: []byte("x"), AutoRelate: true, RelateThreshold: 1.5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CreateMemory(ctx, tc.in)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
		})
	}
}

func TestEngine_CreateUnknownContext(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	missing := int64(999)
	_, err := e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID:   1,
		Title:     "t",
		Content:   []byte("x"),
		ContextID: &missing,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindContextNotFound, apperrors.KindOf(err))
}

func TestEngine_CreateForeignContextRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Given: a context owned by user 2
	c, err := e.CreateContext(ctx, ContextInput{OwnerID: 2, Name: "theirs"})
	require.NoError(t, err)

	// When: user 1 tries to file a memory under it
	_, err = e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID:   1,
		Title:     "t",
		Content:   []byte("x"),
		ContextID: &c.ID,
	})

	// Then: the context is reported as unknown, not as denied
	require.Error(t, err)
	assert.Equal(t, apperrors.KindContextNotFound, apperrors.KindOf(err))
}

func TestEngine_LargeContentChunkedAndCompressed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Given: 200k of highly compressible text
	content := make([]byte, 200_000)
	for i := range content {
		content[i] = 'A'
	}
	m, err := e.CreateMemory(ctx, CreateMemoryInput{OwnerID: 1, Title: "big", Content: content})
	require.NoError(t, err)

	// Then: it is stored chunked and compressed, far below its raw size
	assert.Equal(t, "chunked_compressed", m.StorageMode)
	assert.Equal(t, int64(200_000), m.OriginalBytes)

	rec, err := e.store.Memories.GetByID(ctx, m.ID, false)
	require.NoError(t, err)
	chunks, err := e.store.Memories.GetChunks(ctx, m.ID, rec.ChunkCount)
	require.NoError(t, err)
	var stored int
	for _, c := range chunks {
		stored += len(c)
	}
	assert.Less(t, stored, 5_000)

	// And: the payload reads back byte for byte
	got, err := e.GetMemory(ctx, 1, m.ID, true)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
}

func TestEngine_IncompressibleContentRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Given: 2 MiB of incompressible bytes
	content := make([]byte, 2<<20)
	rng := rand.New(rand.NewSource(42))
	_, err := rng.Read(content)
	require.NoError(t, err)

	m, err := e.CreateMemory(ctx, CreateMemoryInput{OwnerID: 1, Title: "blob", Content: content})
	require.NoError(t, err)

	// Then: compression is skipped but chunking still applies
	assert.Equal(t, "chunked", m.StorageMode)

	got, err := e.GetMemory(ctx, 1, m.ID, true)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
}

func TestEngine_GetWithoutContentSkipsPayload(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "light", "heavy payload")

	got, err := e.GetMemory(ctx, 1, m.ID, false)
	require.NoError(t, err)
	assert.Nil(t, got.Content)
	assert.Equal(t, "light", got.Title)
	assert.NotEmpty(t, got.ContentHash)
}

func TestEngine_GetMissing(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.GetMemory(context.Background(), 1, 12345, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestEngine_AccessLevels(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mk := func(level string) int64 {
		m, err := e.CreateMemory(ctx, CreateMemoryInput{
			OwnerID:     1,
			Title:       level + " memory",
			Content:     []byte("body"),
			AccessLevel: level,
		})
		require.NoError(t, err)
		return m.ID
	}
	private, user, public := mk("private"), mk("user"), mk("public")

	tests := []struct {
		name    string
		caller  int64
		id      int64
		allowed bool
	}{
		{"owner reads private", 1, private, true},
		{"other reads private", 2, private, false},
		{"anonymous reads private", 0, private, false},
		{"owner reads user", 1, user, true},
		{"other reads user", 2, user, true},
		{"anonymous reads user", 0, user, false},
		{"owner reads public", 1, public, true},
		{"other reads public", 2, public, true},
		{"anonymous reads public", 0, public, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.GetMemory(ctx, tc.caller, tc.id, true)
			if tc.allowed {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperrors.KindAccessDenied, apperrors.KindOf(err))
		})
	}
}

func TestEngine_WritesAreOwnerOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Given: a public memory owned by user 1
	m, err := e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID:     1,
		Title:       "shared",
		Content:     []byte("body"),
		AccessLevel: "public",
	})
	require.NoError(t, err)

	// Then: readers who are not the owner cannot update or delete it
	title := "hijacked"
	_, err = e.UpdateMemory(ctx, 2, m.ID, UpdateMemoryInput{Title: &title})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAccessDenied, apperrors.KindOf(err))

	err = e.DeleteMemory(ctx, 2, m.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAccessDenied, apperrors.KindOf(err))

	// And: the memory is untouched
	got, err := e.GetMemory(ctx, 1, m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "shared", got.Title)
}

func TestEngine_UpdateFieldsOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "before", "unchanged body")
	drain(t, e)
	processed := e.queue.Processed()

	// When: patching fields without touching the payload
	title := "after"
	importance := 9.0
	got, err := e.UpdateMemory(ctx, 1, m.ID, UpdateMemoryInput{
		Title:      &title,
		Importance: &importance,
		Tags:       []string{"patched"},
		HasTags:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, 9.0, got.Importance)
	assert.Equal(t, []string{"patched"}, got.Tags)

	// Then: the payload is intact. A title change re-embeds, so one more
	// job lands on the queue.
	full, err := e.GetMemory(ctx, 1, m.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("unchanged body"), full.Content)

	drain(t, e)
	assert.Equal(t, processed+1, e.queue.Processed())
}

func TestEngine_UpdateImportanceKeepsEmbedding(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "stable", "body")
	drain(t, e)
	processed := e.queue.Processed()

	// When: only importance changes
	importance := 2.0
	_, err := e.UpdateMemory(ctx, 1, m.ID, UpdateMemoryInput{Importance: &importance})
	require.NoError(t, err)
	drain(t, e)

	// Then: no re-embedding happened and the record still counts as
	// embedded
	assert.Equal(t, processed, e.queue.Processed())
	got, err := e.GetMemory(ctx, 1, m.ID, false)
	require.NoError(t, err)
	assert.True(t, got.Embedded)
}

func TestEngine_UpdateContentReplacesPayload(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "doc", "the original text")
	drain(t, e)

	// When: replacing the payload
	got, err := e.UpdateMemory(ctx, 1, m.ID, UpdateMemoryInput{
		Content:    []byte("entirely new text"),
		HasContent: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len("entirely new text")), got.OriginalBytes)

	full, err := e.GetMemory(ctx, 1, m.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("entirely new text"), full.Content)

	// Then: the vector is refreshed once the queue drains
	drain(t, e)
	after, err := e.GetMemory(ctx, 1, m.ID, false)
	require.NoError(t, err)
	assert.True(t, after.Embedded)
	assert.True(t, e.index.Contains(m.ID))
}

func TestEngine_UpdateClearContext(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	c, err := e.CreateContext(ctx, ContextInput{OwnerID: 1, Name: "project"})
	require.NoError(t, err)
	m, err := e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID:   1,
		Title:     "filed",
		Content:   []byte("x"),
		ContextID: &c.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, m.ContextID)

	got, err := e.UpdateMemory(ctx, 1, m.ID, UpdateMemoryInput{ClearContext: true})
	require.NoError(t, err)
	assert.Nil(t, got.ContextID)
}

func TestEngine_UpdateNothingToDo(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "same", "body")

	// An empty patch is accepted and returns the current record.
	got, err := e.UpdateMemory(ctx, 1, m.ID, UpdateMemoryInput{})
	require.NoError(t, err)
	assert.Equal(t, "same", got.Title)
}

func TestEngine_DeleteCascades(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Given: two related memories, both embedded
	a := mustCreate(t, e, 1, "alpha entry", "shared topic words here")
	b := mustCreate(t, e, 1, "beta entry", "other words entirely")
	drain(t, e)

	_, err := e.CreateRelation(ctx, 1, RelationInput{
		SourceID: a.ID, TargetID: b.ID, Type: "references",
	})
	require.NoError(t, err)

	// When: deleting one endpoint
	require.NoError(t, e.DeleteMemory(ctx, 1, a.ID))
	drain(t, e)

	// Then: the record is gone, its edges are gone, and its vector left
	// the index
	_, err = e.GetMemory(ctx, 1, a.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	rels, err := e.GetMemoryRelations(ctx, 1, b.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)

	assert.False(t, e.index.Contains(a.ID))
	assert.True(t, e.index.Contains(b.ID))
}

func TestEngine_DeleteTwice(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "gone", "body")
	require.NoError(t, e.DeleteMemory(ctx, 1, m.ID))

	err := e.DeleteMemory(ctx, 1, m.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestEngine_ListMemoriesFilters(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	c, err := e.CreateContext(ctx, ContextInput{OwnerID: 1, Name: "work"})
	require.NoError(t, err)

	_, err = e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID: 1, Title: "in context", Content: []byte("x"),
		ContextID: &c.ID, Category: "technical", Tags: []string{"go"},
	})
	require.NoError(t, err)
	_, err = e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID: 1, Title: "loose", Content: []byte("x"), Category: "planning",
	})
	require.NoError(t, err)
	_, err = e.CreateMemory(ctx, CreateMemoryInput{
		OwnerID: 2, Title: "someone else", Content: []byte("x"),
	})
	require.NoError(t, err)

	all, err := e.ListMemories(ctx, ListMemoriesInput{OwnerID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byContext, err := e.ListMemories(ctx, ListMemoriesInput{OwnerID: 1, ContextID: &c.ID})
	require.NoError(t, err)
	require.Len(t, byContext, 1)
	assert.Equal(t, "in context", byContext[0].Title)

	byCategory, err := e.ListMemories(ctx, ListMemoriesInput{OwnerID: 1, Category: "planning"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "loose", byCategory[0].Title)

	byTag, err := e.ListMemories(ctx, ListMemoriesInput{OwnerID: 1, Tag: "go"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "in context", byTag[0].Title)
}

func TestEngine_BulkCreate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	items := []CreateMemoryInput{
		{OwnerID: 1, Title: "one", Content: []byte("first")},
		{OwnerID: 1, Title: "two", Content: []byte("second")},
		{OwnerID: 1, Title: "three", Content: []byte("third")},
	}
	res, err := e.BulkCreateMemories(ctx, 1, items)
	require.NoError(t, err)
	assert.Len(t, res.CreatedIDs, 3)
	assert.Equal(t, -1, res.FailedIndex)

	// All three become readable and eventually embedded.
	drain(t, e)
	for _, id := range res.CreatedIDs {
		got, err := e.GetMemory(ctx, 1, id, false)
		require.NoError(t, err)
		assert.True(t, got.Embedded)
	}
}

func TestEngine_BulkCreateReportsFailingIndex(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	items := []CreateMemoryInput{
		{OwnerID: 1, Title: "fine", Content: []byte("ok")},
		{OwnerID: 1, Title: "", Content: []byte("missing title")},
		{OwnerID: 1, Title: "never reached", Content: []byte("x")},
	}
	res, err := e.BulkCreateMemories(ctx, 1, items)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))

	require.NotNil(t, res)
	assert.Equal(t, 1, res.FailedIndex)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "1", appErr.Detail["failed_index"])
}

func TestEngine_BulkCreateEmpty(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.BulkCreateMemories(context.Background(), 1, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestEngine_CorruptedPayloadFlaggedAndStillListed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Given: a stored record whose hash no longer matches its bytes
	m := mustCreate(t, e, 1, "damaged", "good content")
	err := e.store.Memories.ReplaceContent(ctx, m.ID, store.PayloadRecord{
		Content:       []byte("tampered"),
		Codec:         "none",
		ContentHash:   "deadbeef",
		OriginalBytes: 8,
	}, store.MemoryPatch{})
	require.NoError(t, err)

	// When: reading the payload
	_, err = e.GetMemory(ctx, 1, m.ID, true)

	// Then: the read fails as corrupted and the record is flagged
	require.Error(t, err)
	assert.Equal(t, apperrors.KindCorrupted, apperrors.KindOf(err))

	got, err := e.GetMemory(ctx, 1, m.ID, false)
	require.NoError(t, err)
	assert.True(t, got.Corrupted)

	// And: a later payload read short-circuits on the flag
	_, err = e.GetMemory(ctx, 1, m.ID, true)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindCorrupted, apperrors.KindOf(err))

	// And: listing still includes it
	all, err := e.ListMemories(ctx, ListMemoriesInput{OwnerID: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Corrupted)
}

func TestEngine_CorruptionRepairedByNewContent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "fixable", "original")
	err := e.store.Memories.ReplaceContent(ctx, m.ID, store.PayloadRecord{
		Content:       []byte("garbage"),
		Codec:         "none",
		ContentHash:   "ffff",
		OriginalBytes: 7,
	}, store.MemoryPatch{})
	require.NoError(t, err)

	_, err = e.GetMemory(ctx, 1, m.ID, true)
	require.Error(t, err)

	// When: the owner writes fresh content
	_, err = e.UpdateMemory(ctx, 1, m.ID, UpdateMemoryInput{
		Content:    []byte("repaired"),
		HasContent: true,
	})
	require.NoError(t, err)

	// Then: the flag clears and reads succeed again
	got, err := e.GetMemory(ctx, 1, m.ID, true)
	require.NoError(t, err)
	assert.False(t, got.Corrupted)
	assert.Equal(t, []byte("repaired"), got.Content)
}

func TestEngine_MemoryCacheServesSecondRead(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := mustCreate(t, e, 1, "cached", "body")

	// Two metadata reads; the second should be served from the cache and
	// still enforce access rules.
	_, err := e.GetMemory(ctx, 1, m.ID, false)
	require.NoError(t, err)
	_, err = e.GetMemory(ctx, 1, m.ID, false)
	require.NoError(t, err)

	_, err = e.GetMemory(ctx, 2, m.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAccessDenied, apperrors.KindOf(err))
}

func TestEngine_QueueOverloadDoesNotFailWrites(t *testing.T) {
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := store.NewHNSWIndex(store.DefaultVectorStoreConfig(embed.LocalDimensions))
	require.NoError(t, err)

	// A depth-1 queue that is never started: the first enqueue fills it,
	// the rest overflow.
	e, err := New(st, idx, cache.NewMemory(16, time.Minute), embed.NewLocalEmbedder(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithQueueConfig(async.QueueConfig{Depth: 1}))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := e.CreateMemory(ctx, CreateMemoryInput{
			OwnerID: 1,
			Title:   "write",
			Content: []byte("must succeed even when embedding backs up"),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.QueueDepth())
}

func TestEngine_Health(t *testing.T) {
	e := newTestEngine(t)

	h := e.Health(context.Background())
	assert.True(t, h.Database)
	assert.True(t, h.Cache)
	assert.True(t, h.Vector)
	assert.True(t, h.Embedding)
	assert.True(t, h.Healthy())
}

func TestEngine_NewRejectsNilDependencies(t *testing.T) {
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	idx, err := store.NewHNSWIndex(store.DefaultVectorStoreConfig(embed.LocalDimensions))
	require.NoError(t, err)
	c := cache.NewMemory(16, time.Minute)
	emb := embed.NewLocalEmbedder()

	_, err = New(nil, idx, c, emb)
	require.ErrorIs(t, err, ErrNilDependency)
	_, err = New(st, nil, c, emb)
	require.ErrorIs(t, err, ErrNilDependency)
	_, err = New(st, idx, nil, emb)
	require.ErrorIs(t, err, ErrNilDependency)
	_, err = New(st, idx, c, nil)
	require.ErrorIs(t, err, ErrNilDependency)
}

// BenchmarkEngine_SearchSemantic measures the uncached query pipeline
// over a populated index: embed, widened vector query, store re-check.
func BenchmarkEngine_SearchSemantic(b *testing.B) {
	st, err := store.Open("")
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = st.Close() }()

	idx, err := store.NewHNSWIndex(store.DefaultVectorStoreConfig(embed.LocalDimensions))
	if err != nil {
		b.Fatal(err)
	}
	e, err := New(st, idx, cache.NewMemory(256, time.Minute), embed.NewLocalEmbedder(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	e.Start(ctx)
	defer func() { _ = e.Stop(context.Background()) }()

	words := []string{
		"deploy", "index", "cache", "queue", "vector", "ledger",
		"socket", "replica", "quorum", "snapshot", "backlog", "rollout",
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		content := words[rng.Intn(len(words))] + " " + words[rng.Intn(len(words))] +
			" " + words[rng.Intn(len(words))]
		if _, err := e.CreateMemory(ctx, CreateMemoryInput{
			OwnerID: 1,
			Title:   "bench note",
			Content: []byte(content),
		}); err != nil {
			b.Fatal(err)
		}
	}
	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := e.queue.Drain(drainCtx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := e.SearchSemantic(ctx, SearchSemanticInput{
			OwnerID: 1,
			Query:   "vector index deploy",
			Limit:   10,
			NoCache: true,
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}
