package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/membank-io/membank/internal/analyze"
	"github.com/membank-io/membank/internal/cache"
	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/store"
)

// Graph analysis modes.
const (
	GraphModeOverview    = "overview"
	GraphModeCentrality  = "centrality"
	GraphModeConnections = "connections"
)

// Content analysis modes.
const (
	AnalysisKeywords    = "keywords"
	AnalysisSentiment   = "sentiment"
	AnalysisComplexity  = "complexity"
	AnalysisReadability = "readability"
)

// AnalyzeKnowledgeGraph reports on the owner's relation graph. Overview
// covers the whole graph; centrality needs a focus memory; connections
// lists every edge.
func (e *Engine) AnalyzeKnowledgeGraph(ctx context.Context, ownerID int64, mode string, focusID int64) (res *GraphAnalysis, err error) {
	start := time.Now()
	defer e.finish("analyze_knowledge_graph", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	switch mode {
	case GraphModeOverview, "":
		overview, err := e.graphOverview(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		return &GraphAnalysis{Mode: GraphModeOverview, Overview: overview}, nil

	case GraphModeCentrality:
		if focusID <= 0 {
			return nil, apperrors.InvalidInput("centrality analysis requires a memory id")
		}
		centrality, err := e.graphCentrality(ctx, ownerID, focusID)
		if err != nil {
			return nil, err
		}
		return &GraphAnalysis{Mode: GraphModeCentrality, Centrality: centrality}, nil

	case GraphModeConnections:
		rels, err := e.store.Relations.ListForOwner(ctx, ownerID)
		if err != nil {
			return nil, apperrors.StorageFailure("list relations", err)
		}
		edges := make([]GraphEdge, len(rels))
		for i, r := range rels {
			edges[i] = GraphEdge{SourceID: r.SourceID, TargetID: r.TargetID, Type: r.Type, Strength: r.Strength}
		}
		return &GraphAnalysis{Mode: GraphModeConnections, Connections: edges}, nil

	default:
		return nil, apperrors.InvalidInput("unknown graph analysis mode %q", mode)
	}
}

func (e *Engine) graphOverview(ctx context.Context, ownerID int64) (*GraphOverview, error) {
	stats, err := e.store.Stats(ctx, ownerID)
	if err != nil {
		return nil, apperrors.StorageFailure("aggregate stats", err)
	}
	top, err := e.store.TopConnected(ctx, ownerID, 5)
	if err != nil {
		return nil, apperrors.StorageFailure("top connected", err)
	}

	v := stats.TotalMemories
	edges := stats.TotalRelations
	var ratio float64
	if v > 1 {
		// Edges over the maximum possible in an undirected simple graph.
		ratio = float64(2*edges) / float64(v*(v-1))
	}
	return &GraphOverview{
		Memories:          v,
		Relations:         edges,
		ConnectivityRatio: ratio,
		TopConnected:      top,
	}, nil
}

func (e *Engine) graphCentrality(ctx context.Context, ownerID, focusID int64) (*GraphCentrality, error) {
	rec, err := e.store.Memories.GetByID(ctx, focusID, false)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("memory", focusID)
	}
	if err != nil {
		return nil, apperrors.StorageFailure("load memory", err)
	}
	if rec.OwnerID != ownerID {
		return nil, apperrors.NotFound("memory", focusID)
	}

	rels, err := e.store.Relations.ListForMemory(ctx, focusID)
	if err != nil {
		return nil, apperrors.StorageFailure("list relations", err)
	}

	c := &GraphCentrality{MemoryID: focusID, Title: rec.Title}
	seen := make(map[int64]*store.ConnectedMemory)
	for _, rel := range rels {
		c.Degree++
		c.StrengthSum += rel.Strength

		otherID, otherTitle := rel.TargetID, rel.TargetTitle
		if otherID == focusID {
			otherID, otherTitle = rel.SourceID, rel.SourceTitle
		}
		if n, ok := seen[otherID]; ok {
			n.Degree++
			continue
		}
		seen[otherID] = &store.ConnectedMemory{ID: otherID, Title: otherTitle, Degree: 1}
	}

	c.Neighborhood = make([]store.ConnectedMemory, 0, len(seen))
	for _, n := range seen {
		c.Neighborhood = append(c.Neighborhood, *n)
	}
	sort.Slice(c.Neighborhood, func(i, j int) bool {
		a, b := c.Neighborhood[i], c.Neighborhood[j]
		if a.Degree != b.Degree {
			return a.Degree > b.Degree
		}
		return a.ID < b.ID
	})
	return c, nil
}

// AnalyzeContent runs textual analysis over specific memories, or over
// the owner's whole active corpus when no ids are given.
func (e *Engine) AnalyzeContent(ctx context.Context, ownerID int64, mode string, memoryIDs []int64) (res *ContentAnalysis, err error) {
	start := time.Now()
	defer e.finish("analyze_content", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	switch mode {
	case AnalysisKeywords, AnalysisSentiment, AnalysisComplexity, AnalysisReadability:
	case "":
		mode = AnalysisKeywords
	default:
		return nil, apperrors.InvalidInput("unknown content analysis mode %q", mode)
	}

	texts, count, err := e.gatherTexts(ctx, ownerID, memoryIDs)
	if err != nil {
		return nil, err
	}
	combined := strings.Join(texts, "\n\n")

	res = &ContentAnalysis{Mode: mode, MemoryCount: count}
	switch mode {
	case AnalysisKeywords:
		res.Keywords = analyze.Keywords(combined, 20)
	case AnalysisSentiment:
		s := analyze.Sentiment(combined)
		res.Sentiment = &s
	case AnalysisComplexity:
		res.Complexity = analyze.Complexity(combined)
	case AnalysisReadability:
		res.Readability = analyze.Readability(combined)
	}
	return res, nil
}

// gatherTexts loads and decodes the payloads under analysis. Corrupted
// memories are skipped rather than failing the whole pass.
func (e *Engine) gatherTexts(ctx context.Context, ownerID int64, memoryIDs []int64) ([]string, int, error) {
	var recs []*store.Memory

	if len(memoryIDs) > 0 {
		for _, id := range memoryIDs {
			rec, err := e.store.Memories.GetByID(ctx, id, true)
			if errors.Is(err, store.ErrNotFound) {
				return nil, 0, apperrors.NotFound("memory", id)
			}
			if err != nil {
				return nil, 0, apperrors.StorageFailure("load memory", err)
			}
			if rec.OwnerID != ownerID {
				return nil, 0, apperrors.NotFound("memory", id)
			}
			recs = append(recs, rec)
		}
	} else {
		light, err := e.store.Memories.ListByOwner(ctx, ownerID, store.MemoryFilter{Limit: store.NoLimit})
		if err != nil {
			return nil, 0, apperrors.StorageFailure("list memories", err)
		}
		for _, l := range light {
			rec, err := e.store.Memories.GetByID(ctx, l.ID, true)
			if err != nil {
				continue
			}
			recs = append(recs, rec)
		}
	}

	texts := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.Corrupted {
			continue
		}
		content, err := e.loadContent(ctx, rec)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindCorrupted) {
				continue
			}
			return nil, 0, err
		}
		texts = append(texts, string(content))
	}
	return texts, len(texts), nil
}

// SummarizeMemory produces an extractive summary of one memory, stores
// it on the record, and returns it.
func (e *Engine) SummarizeMemory(ctx context.Context, ownerID, id int64, maxChars int) (summary string, err error) {
	start := time.Now()
	defer e.finish("summarize_memory", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rec, err := e.store.Memories.GetByID(ctx, id, true)
	if errors.Is(err, store.ErrNotFound) {
		return "", apperrors.NotFound("memory", id)
	}
	if err != nil {
		return "", apperrors.StorageFailure("load memory", err)
	}
	if rec.OwnerID != ownerID {
		return "", apperrors.AccessDenied("memory", id)
	}

	content, err := e.loadContent(ctx, rec)
	if err != nil {
		return "", err
	}

	summary = analyze.Summarize(string(content), maxChars)
	if err := e.store.Memories.UpdateFields(ctx, id, store.MemoryPatch{Summary: &summary}); err != nil {
		return "", apperrors.StorageFailure("store summary", err)
	}
	e.cache.InvalidatePrefix(ctx, cache.MemoryKey(id))
	e.audit(ctx, ownerID, "memory.summarize", "memory", id, "")
	return summary, nil
}

// CategorizeMemories classifies every active memory of the owner by its
// lexicon scores, optionally generating tags, and persists changes.
func (e *Engine) CategorizeMemories(ctx context.Context, ownerID int64, autoTags bool) (rep *CategorizeReport, err error) {
	start := time.Now()
	defer e.finish("categorize_memories", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	light, err := e.store.Memories.ListByOwner(ctx, ownerID, store.MemoryFilter{Limit: store.NoLimit})
	if err != nil {
		return nil, apperrors.StorageFailure("list memories", err)
	}

	rep = &CategorizeReport{ByCategory: make(map[string]int64)}
	for _, l := range light {
		rec, err := e.store.Memories.GetByID(ctx, l.ID, true)
		if err != nil {
			continue
		}
		rep.Examined++

		var text string
		if !rec.Corrupted {
			if content, err := e.loadContent(ctx, rec); err == nil {
				text = string(content)
			}
		}

		maxTags := 0
		if autoTags {
			maxTags = 5
		}
		category, tags := analyze.Categorize(rec.Title, text, maxTags)
		rep.ByCategory[category]++

		patch := store.MemoryPatch{}
		changed := false
		if category != rec.Category {
			patch.Category = &category
			changed = true
		}
		if autoTags {
			if merged, grew := mergeTags(rec.Tags, tags); grew {
				patch.Tags = merged
				patch.HasTags = true
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := e.store.Memories.UpdateFields(ctx, rec.ID, patch); err != nil {
			e.log.Warn("categorize update failed", "memory_id", rec.ID, "error", err)
			continue
		}
		e.cache.InvalidatePrefix(ctx, cache.MemoryKey(rec.ID))
		rep.Updated++
	}

	if rep.Updated > 0 {
		e.cache.InvalidatePrefix(ctx, cache.StatsKey(ownerID))
		e.audit(ctx, ownerID, "memory.categorize", "memory", 0,
			fmt.Sprintf("updated=%d", rep.Updated))
	}
	return rep, nil
}

func mergeTags(existing, extra []string) ([]string, bool) {
	seen := make(map[string]bool, len(existing))
	merged := make([]string, 0, len(existing)+len(extra))
	for _, t := range existing {
		seen[t] = true
		merged = append(merged, t)
	}
	grew := false
	for _, t := range extra {
		if seen[t] {
			continue
		}
		if len(merged) >= maxTagCount {
			break
		}
		seen[t] = true
		merged = append(merged, t)
		grew = true
	}
	return merged, grew
}

// Stats returns the owner's corpus counters, cached for the result TTL.
func (e *Engine) Stats(ctx context.Context, ownerID int64) (st *store.OwnerStats, err error) {
	start := time.Now()
	defer e.finish("stats", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	key := cache.StatsKey(ownerID)
	if raw, ok := e.cache.Get(ctx, key); ok {
		if cached, err := decodeJSON[store.OwnerStats](raw); err == nil {
			e.metrics.CacheHit()
			return cached, nil
		}
	}
	e.metrics.CacheMiss()

	st, err = e.store.Stats(ctx, ownerID)
	if err != nil {
		return nil, apperrors.StorageFailure("aggregate stats", err)
	}
	if raw, err := encodeJSON(st); err == nil {
		e.cache.Set(ctx, key, raw, e.cacheTTL)
	}
	return st, nil
}
