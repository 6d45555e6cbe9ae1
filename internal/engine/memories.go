package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/membank-io/membank/internal/async"
	"github.com/membank-io/membank/internal/cache"
	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/payload"
	"github.com/membank-io/membank/internal/store"
)

const (
	maxTitleRunes = 500
	maxTagCount   = 32
	maxTagRunes   = 64

	// defaultImportance is assigned when the caller leaves it zero.
	defaultImportance = 5.0
	// defaultRelateThreshold gates auto-created similarity edges.
	defaultRelateThreshold = 0.7
	relationSimilarTo      = "similar_to"
)

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n == 0 {
		return "", apperrors.InvalidInput("title must not be empty")
	}
	if n > maxTitleRunes {
		return "", apperrors.InvalidInput("title exceeds %d characters", maxTitleRunes)
	}
	return title, nil
}

func validateImportance(v float64) (float64, error) {
	if v == 0 {
		return defaultImportance, nil
	}
	if v < 1 || v > 10 {
		return 0, apperrors.InvalidInput("importance must be between 1 and 10, got %g", v)
	}
	return v, nil
}

func validateAccessLevel(s string) (store.AccessLevel, error) {
	if s == "" {
		return store.AccessPrivate, nil
	}
	if !store.ValidAccessLevel(s) {
		return "", apperrors.InvalidInput("unknown access level %q", s)
	}
	return store.AccessLevel(s), nil
}

func validateTags(tags []string) error {
	if len(tags) > maxTagCount {
		return apperrors.InvalidInput("at most %d tags allowed", maxTagCount)
	}
	for _, t := range tags {
		if t == "" {
			return apperrors.InvalidInput("tags must not be empty")
		}
		if utf8.RuneCountInString(t) > maxTagRunes {
			return apperrors.InvalidInput("tag %q exceeds %d characters", t, maxTagRunes)
		}
	}
	return nil
}

func (e *Engine) validateContent(content []byte) error {
	if len(content) == 0 {
		return apperrors.InvalidInput("content must not be empty")
	}
	if int64(len(content)) > e.limits.MaxContentBytes {
		return apperrors.InvalidInput("content of %d bytes exceeds the %d byte limit",
			len(content), e.limits.MaxContentBytes)
	}
	return nil
}

// buildRecord validates one creation input and encodes its payload.
func (e *Engine) buildRecord(in CreateMemoryInput) (*store.Memory, [][]byte, error) {
	if in.OwnerID <= 0 {
		return nil, nil, apperrors.InvalidInput("owner id must be positive")
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, nil, err
	}
	if err := e.validateContent(in.Content); err != nil {
		return nil, nil, err
	}
	if err := validateTags(in.Tags); err != nil {
		return nil, nil, err
	}
	importance, err := validateImportance(in.Importance)
	if err != nil {
		return nil, nil, err
	}
	level, err := validateAccessLevel(in.AccessLevel)
	if err != nil {
		return nil, nil, err
	}

	enc, err := payload.Encode(in.Content, e.policy)
	if err != nil {
		return nil, nil, apperrors.StorageFailure("encode payload", err)
	}

	m := &store.Memory{
		OwnerID:       in.OwnerID,
		ContextID:     in.ContextID,
		Title:         title,
		Content:       enc.Inline,
		ContentHash:   enc.Hash,
		Codec:         string(enc.Codec),
		Chunked:       enc.Mode.Chunked(),
		ChunkCount:    len(enc.Chunks),
		OriginalBytes: enc.OriginalBytes,
		Summary:       in.Summary,
		Category:      in.Category,
		Tags:          in.Tags,
		Metadata:      in.Metadata,
		AccessLevel:   level,
		Importance:    importance,
	}
	return m, enc.Chunks, nil
}

// CreateMemory validates, encodes, and commits one memory, then runs the
// post-commit side effects: embedding enqueue, cache invalidation, audit,
// and optional auto-relation. Side-effect failures never undo the commit.
func (e *Engine) CreateMemory(ctx context.Context, in CreateMemoryInput) (m *Memory, err error) {
	start := time.Now()
	defer e.finish("create_memory", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	threshold := in.RelateThreshold
	if threshold == 0 {
		threshold = defaultRelateThreshold
	}
	if in.AutoRelate && (threshold < 0 || threshold > 1) {
		return nil, apperrors.InvalidInput("relate threshold must be within [0,1], got %g", threshold)
	}
	if err := e.validateContext(ctx, in.OwnerID, in.ContextID); err != nil {
		return nil, err
	}
	rec, chunks, err := e.buildRecord(in)
	if err != nil {
		return nil, err
	}

	if err := e.store.Memories.Create(ctx, rec, chunks); err != nil {
		return nil, apperrors.StorageFailure("create memory", err)
	}

	e.afterWrite(ctx, rec, async.JobUpsert)
	e.audit(ctx, in.OwnerID, "memory.create", "memory", rec.ID, rec.Title)

	if in.AutoRelate {
		created := e.autoRelate(ctx, rec, in.Content, threshold)
		if created > 0 {
			e.log.Debug("auto-related memory", "memory_id", rec.ID, "relations", created)
		}
	}

	return memoryView(rec), nil
}

// afterWrite runs the shared post-commit effects for a memory write.
func (e *Engine) afterWrite(ctx context.Context, m *store.Memory, kind async.JobKind) {
	if err := e.queue.Enqueue(async.Job{Kind: kind, MemoryID: m.ID}); err != nil {
		// The reconciler repairs the index on the next start.
		e.log.Warn("embedding enqueue failed", "memory_id", m.ID, "error", err)
	}
	e.invalidateOwner(ctx, m.OwnerID, m.ID)
}

// autoRelate links the new memory to its nearest neighbors above the
// threshold. Best effort: the memory is already committed, so failures
// log and return.
func (e *Engine) autoRelate(ctx context.Context, m *store.Memory, content []byte, threshold float64) int {
	vec, err := e.embedQuery(ctx, embedText(m.Title, content))
	if err != nil {
		e.log.Warn("auto-relate embed failed", "memory_id", m.ID, "error", err)
		return 0
	}

	qctx, cancel := context.WithTimeout(ctx, e.limits.QueryTimeout)
	defer cancel()
	hits, err := e.index.Query(qctx, vec, e.limits.AutoRelateLimit+1, store.VectorFilter{OwnerID: m.OwnerID})
	if err != nil {
		e.log.Warn("auto-relate query failed", "memory_id", m.ID, "error", err)
		return 0
	}

	created := 0
	for _, hit := range hits {
		if hit.ID == m.ID || float64(hit.Score) < threshold {
			continue
		}
		if created >= e.limits.AutoRelateLimit {
			break
		}
		if _, err := e.store.Memories.GetByID(ctx, hit.ID, false); err != nil {
			continue // index ahead of the store; skip stale hits
		}
		_, wasNew, err := e.store.Relations.Insert(ctx, &store.Relation{
			OwnerID:  m.OwnerID,
			SourceID: m.ID,
			TargetID: hit.ID,
			Type:     relationSimilarTo,
			Strength: float64(hit.Score),
		})
		if err != nil {
			e.log.Warn("auto-relate insert failed", "memory_id", m.ID, "target", hit.ID, "error", err)
			continue
		}
		if wasNew {
			created++
		}
	}
	return created
}

// GetMemory returns one memory, enforcing access rules. Without content
// the lightweight record is served from cache when possible; with
// content the payload is reassembled, verified, and returned.
func (e *Engine) GetMemory(ctx context.Context, callerID, id int64, includeContent bool) (m *Memory, err error) {
	start := time.Now()
	defer e.finish("get_memory", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if !includeContent {
		if view, ok := e.cachedMemory(ctx, id); ok {
			e.metrics.CacheHit()
			if !canRead(callerID, view.OwnerID, store.AccessLevel(view.AccessLevel)) {
				return nil, apperrors.AccessDenied("memory", id)
			}
			return view, nil
		}
		e.metrics.CacheMiss()
	}

	rec, err := e.store.Memories.GetByID(ctx, id, includeContent)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("memory", id)
	}
	if err != nil {
		return nil, apperrors.StorageFailure("load memory", err)
	}
	if !canRead(callerID, rec.OwnerID, rec.AccessLevel) {
		return nil, apperrors.AccessDenied("memory", id)
	}

	view := memoryView(rec)
	e.cacheMemory(ctx, view)

	if includeContent {
		if rec.Corrupted {
			return nil, apperrors.Corrupted(id, "flagged by an earlier read")
		}
		content, err := e.loadContent(ctx, rec)
		if err != nil {
			return nil, err
		}
		view.Content = content
	}
	return view, nil
}

func (e *Engine) cachedMemory(ctx context.Context, id int64) (*Memory, bool) {
	raw, ok := e.cache.Get(ctx, cache.MemoryKey(id))
	if !ok {
		return nil, false
	}
	view, err := decodeJSON[Memory](raw)
	if err != nil {
		return nil, false
	}
	return view, true
}

func (e *Engine) cacheMemory(ctx context.Context, view *Memory) {
	stripped := *view
	stripped.Content = nil
	if raw, err := encodeJSON(&stripped); err == nil {
		e.cache.Set(ctx, cache.MemoryKey(view.ID), raw, e.cacheTTL)
	}
}

// UpdateMemory applies a partial update under the per-memory lock. A
// content replacement rewrites the payload atomically and schedules
// re-embedding; the old embedding serves queries until then.
func (e *Engine) UpdateMemory(ctx context.Context, ownerID, id int64, in UpdateMemoryInput) (m *Memory, err error) {
	start := time.Now()
	defer e.finish("update_memory", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	unlock := e.locks.Lock(id)
	defer unlock()

	rec, err := e.store.Memories.GetByID(ctx, id, false)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("memory", id)
	}
	if err != nil {
		return nil, apperrors.StorageFailure("load memory", err)
	}
	if rec.OwnerID != ownerID {
		return nil, apperrors.AccessDenied("memory", id)
	}

	patch, err := e.buildPatch(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}

	if in.HasContent {
		if err := e.validateContent(in.Content); err != nil {
			return nil, err
		}
		enc, err := payload.Encode(in.Content, e.policy)
		if err != nil {
			return nil, apperrors.StorageFailure("encode payload", err)
		}
		pr := store.PayloadRecord{
			Content:       enc.Inline,
			Chunks:        enc.Chunks,
			Codec:         string(enc.Codec),
			Chunked:       enc.Mode.Chunked(),
			ContentHash:   enc.Hash,
			OriginalBytes: enc.OriginalBytes,
		}
		if err := e.store.Memories.ReplaceContent(ctx, id, pr, patch); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.NotFound("memory", id)
			}
			return nil, apperrors.StorageFailure("replace content", err)
		}
	} else if !patch.Empty() {
		if err := e.store.Memories.UpdateFields(ctx, id, patch); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.NotFound("memory", id)
			}
			return nil, apperrors.StorageFailure("update memory", err)
		}
	}

	updated, err := e.store.Memories.GetByID(ctx, id, false)
	if err != nil {
		return nil, apperrors.StorageFailure("reload memory", err)
	}
	// Field-only changes keep the existing embedding.
	if in.HasContent || in.Title != nil {
		e.afterWrite(ctx, updated, async.JobUpsert)
	} else {
		e.invalidateOwner(ctx, ownerID, id)
	}
	e.audit(ctx, ownerID, "memory.update", "memory", id, "")

	return memoryView(updated), nil
}

func (e *Engine) buildPatch(ctx context.Context, ownerID int64, in UpdateMemoryInput) (store.MemoryPatch, error) {
	var patch store.MemoryPatch

	if in.Title != nil {
		title, err := validateTitle(*in.Title)
		if err != nil {
			return patch, err
		}
		patch.Title = &title
	}
	if in.ClearContext {
		patch.ClearContext = true
	} else if in.ContextID != nil {
		if err := e.validateContext(ctx, ownerID, in.ContextID); err != nil {
			return patch, err
		}
		patch.ContextID = in.ContextID
	}
	patch.Summary = in.Summary
	patch.Category = in.Category
	if in.HasTags {
		if err := validateTags(in.Tags); err != nil {
			return patch, err
		}
		patch.Tags = in.Tags
		patch.HasTags = true
	}
	if in.HasMetadata {
		patch.Metadata = in.Metadata
		patch.HasMetadata = true
	}
	if in.AccessLevel != nil {
		level, err := validateAccessLevel(*in.AccessLevel)
		if err != nil {
			return patch, err
		}
		patch.AccessLevel = &level
	}
	if in.Importance != nil {
		v, err := validateImportance(*in.Importance)
		if err != nil {
			return patch, err
		}
		patch.Importance = &v
	}
	return patch, nil
}

// DeleteMemory soft-deletes a memory, cascades its relations, and
// schedules removal of its vector. The record stays in the store for
// audit; it is invisible to every read and search path.
func (e *Engine) DeleteMemory(ctx context.Context, ownerID, id int64) (err error) {
	start := time.Now()
	defer e.finish("delete_memory", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	unlock := e.locks.Lock(id)
	defer unlock()

	rec, err := e.store.Memories.GetByID(ctx, id, false)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound("memory", id)
	}
	if err != nil {
		return apperrors.StorageFailure("load memory", err)
	}
	if rec.OwnerID != ownerID {
		return apperrors.AccessDenied("memory", id)
	}

	if err := e.store.Memories.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("memory", id)
		}
		return apperrors.StorageFailure("delete memory", err)
	}

	removed, err := e.store.Relations.DeleteByMemory(ctx, id)
	if err != nil {
		e.log.Warn("relation cascade failed", "memory_id", id, "error", err)
	}

	e.afterWrite(ctx, rec, async.JobDelete)
	e.audit(ctx, ownerID, "memory.delete", "memory", id,
		fmt.Sprintf("relations_removed=%d", removed))
	return nil
}

// ListMemories returns the owner's memories, newest first.
func (e *Engine) ListMemories(ctx context.Context, in ListMemoriesInput) (out []*Memory, err error) {
	start := time.Now()
	defer e.finish("list_memories", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.validateContext(ctx, in.OwnerID, in.ContextID); err != nil {
		return nil, err
	}

	recs, err := e.store.Memories.ListByOwner(ctx, in.OwnerID, store.MemoryFilter{
		ContextID: in.ContextID,
		Category:  in.Category,
		Tag:       in.Tag,
		Limit:     in.Limit,
		Offset:    in.Offset,
	})
	if err != nil {
		return nil, apperrors.StorageFailure("list memories", err)
	}

	out = make([]*Memory, len(recs))
	for i, rec := range recs {
		out[i] = memoryView(rec)
	}
	return out, nil
}

// BulkCreateMemories creates many memories in checkpointed batches.
// Validation failures and mid-batch store failures report the absolute
// index of the failing item; items committed before it stay committed.
func (e *Engine) BulkCreateMemories(ctx context.Context, ownerID int64, items []CreateMemoryInput) (res *BulkCreateResult, err error) {
	start := time.Now()
	defer e.finish("bulk_create_memories", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if len(items) == 0 {
		return nil, apperrors.InvalidInput("no items to create")
	}

	checkedContexts := make(map[int64]bool)
	batch := make([]store.BatchItem, 0, len(items))
	for i, in := range items {
		in.OwnerID = ownerID
		if in.ContextID != nil && !checkedContexts[*in.ContextID] {
			if err := e.validateContext(ctx, ownerID, in.ContextID); err != nil {
				return &BulkCreateResult{CreatedIDs: []int64{}, FailedIndex: i},
					withIndex(err, i)
			}
			checkedContexts[*in.ContextID] = true
		}
		rec, chunks, err := e.buildRecord(in)
		if err != nil {
			return &BulkCreateResult{CreatedIDs: []int64{}, FailedIndex: i},
				withIndex(err, i)
		}
		batch = append(batch, store.BatchItem{Memory: rec, Chunks: chunks})
	}

	ids, failedIdx, err := e.store.Memories.CreateBatch(ctx, batch, e.limits.BatchSize)

	for _, id := range ids {
		if qErr := e.queue.Enqueue(async.Job{Kind: async.JobUpsert, MemoryID: id}); qErr != nil {
			e.log.Warn("embedding enqueue failed", "memory_id", id, "error", qErr)
		}
	}
	e.invalidateOwner(ctx, ownerID, ids...)
	e.audit(ctx, ownerID, "memory.bulk_create", "memory", 0,
		fmt.Sprintf("count=%d", len(ids)))

	if err != nil {
		return &BulkCreateResult{CreatedIDs: ids, FailedIndex: failedIdx},
			withIndex(apperrors.StorageFailure("bulk create", err), failedIdx)
	}
	return &BulkCreateResult{CreatedIDs: ids, FailedIndex: -1}, nil
}

func withIndex(err error, i int) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.WithDetail("failed_index", strconv.Itoa(i))
	}
	return err
}
