package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/membank-io/membank/internal/cache"
	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/store"
)

// SearchMemories does keyword search over titles and inline plain-text
// payloads, ordered by importance then recency.
func (e *Engine) SearchMemories(ctx context.Context, ownerID int64, query string, limit int) (out []*Memory, err error) {
	start := time.Now()
	defer e.finish("search_memories", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.InvalidInput("query must not be empty")
	}

	recs, err := e.store.Memories.SearchKeyword(ctx, ownerID, query, limit)
	if err != nil {
		return nil, apperrors.StorageFailure("keyword search", err)
	}
	out = make([]*Memory, len(recs))
	for i, rec := range recs {
		out[i] = memoryView(rec)
	}
	return out, nil
}

// embedQuery embeds text under the embedding deadline.
func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, e.limits.EmbedTimeout)
	defer cancel()
	vec, err := e.embedder.Embed(ectx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.DeadlineExceeded("embed")
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "embed query", err)
	}
	return vec, nil
}

// SearchSemantic embeds the query, retrieves a widened candidate set
// from the vector index, re-checks each hit against the store, and
// returns hits at or above the similarity threshold. Results are cached
// per (owner, query, limit, threshold, context).
func (e *Engine) SearchSemantic(ctx context.Context, in SearchSemanticInput) (res *SemanticResults, err error) {
	start := time.Now()
	defer e.finish("search_semantic", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return nil, apperrors.InvalidInput("query must not be empty")
	}
	if in.Limit <= 0 {
		in.Limit = 10
	}
	if in.Threshold < 0 || in.Threshold > 1 {
		return nil, apperrors.InvalidInput("threshold must be within [0,1], got %g", in.Threshold)
	}
	if err := e.validateContext(ctx, in.OwnerID, in.ContextID); err != nil {
		return nil, err
	}

	var ctxID int64
	if in.ContextID != nil {
		ctxID = *in.ContextID
	}
	key := cache.SemanticKey(in.OwnerID, in.Query, in.Limit, in.Threshold, ctxID)

	if !in.NoCache {
		if raw, ok := e.cache.Get(ctx, key); ok {
			if cached, err := decodeJSON[SemanticResults](raw); err == nil {
				e.metrics.CacheHit()
				cached.Cached = true
				return cached, nil
			}
		}
		e.metrics.CacheMiss()
	}

	hits, err := e.semanticHits(ctx, in.OwnerID, in.Query, in.Limit, in.Threshold, ctxID, 0)
	if err != nil {
		return nil, err
	}

	res = &SemanticResults{Hits: hits}
	if !in.NoCache {
		if raw, err := encodeJSON(res); err == nil {
			e.cache.Set(ctx, key, raw, e.cacheTTL)
		}
	}
	return res, nil
}

// semanticHits runs the shared embed-query-filter pipeline. excludeID
// drops one memory from the results (the probe memory in FindSimilar).
func (e *Engine) semanticHits(ctx context.Context, ownerID int64, query string, limit int, threshold float64, ctxID, excludeID int64) ([]*SemanticHit, error) {
	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	k := limit * e.limits.TopKMultiplier
	if k > e.limits.MaxTopK {
		k = e.limits.MaxTopK
	}
	if k < limit {
		k = limit
	}

	qctx, cancel := context.WithTimeout(ctx, e.limits.QueryTimeout)
	defer cancel()
	results, err := e.index.Query(qctx, vec, k, store.VectorFilter{OwnerID: ownerID, ContextID: ctxID})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.DeadlineExceeded("vector query")
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "vector query", err)
	}

	hits := make([]*SemanticHit, 0, limit)
	for _, r := range results {
		if r.ID == excludeID {
			continue
		}
		sim := float64(r.Score)
		if sim < threshold {
			continue
		}
		rec, err := e.store.Memories.GetByID(ctx, r.ID, false)
		if err != nil {
			continue // deleted since indexing; reconciler will clean up
		}
		if rec.OwnerID != ownerID {
			continue
		}
		hits = append(hits, &SemanticHit{Memory: memoryView(rec), Similarity: sim})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Memory.Importance != b.Memory.Importance {
			return a.Memory.Importance > b.Memory.Importance
		}
		if !a.Memory.UpdatedAt.Equal(b.Memory.UpdatedAt) {
			return a.Memory.UpdatedAt.After(b.Memory.UpdatedAt)
		}
		return a.Memory.ID < b.Memory.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// FindSimilar returns the nearest neighbors of an existing memory. The
// probe is re-embedded from its stored content, so results are correct
// even while its background embedding is still pending.
func (e *Engine) FindSimilar(ctx context.Context, ownerID, memoryID int64, limit int, threshold float64) (hits []*SemanticHit, err error) {
	start := time.Now()
	defer e.finish("find_similar", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}
	if threshold < 0 || threshold > 1 {
		return nil, apperrors.InvalidInput("threshold must be within [0,1], got %g", threshold)
	}

	rec, err := e.store.Memories.GetByID(ctx, memoryID, true)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("memory", memoryID)
	}
	if err != nil {
		return nil, apperrors.StorageFailure("load memory", err)
	}
	if !canRead(ownerID, rec.OwnerID, rec.AccessLevel) {
		return nil, apperrors.AccessDenied("memory", memoryID)
	}

	content, err := e.loadContent(ctx, rec)
	if err != nil {
		return nil, err
	}

	return e.semanticHits(ctx, ownerID, embedText(rec.Title, content), limit, threshold, 0, memoryID)
}
