package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/membank-io/membank/internal/async"
	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/store"
)

// reindexWorkers bounds concurrent embedding during a full rebuild.
const reindexWorkers = 4

// processJob runs one background job: embed-and-upsert for writes,
// index removal for deletes. Transient failures are marked retryable so
// the queue's backoff applies; a memory deleted since submission is a
// success.
func (e *Engine) processJob(ctx context.Context, job async.Job) (err error) {
	defer func() { e.metrics.EmbedJob(job.Kind.String(), err) }()

	switch job.Kind {
	case async.JobDelete:
		if err := e.index.Delete(ctx, job.MemoryID); err != nil {
			return apperrors.StorageFailure("vector delete", err).AsRetryable()
		}
		return nil

	case async.JobUpsert:
		return e.embedAndUpsert(ctx, job.MemoryID)

	default:
		return apperrors.Newf(apperrors.KindInternal, "unknown job kind %d", job.Kind)
	}
}

func (e *Engine) embedAndUpsert(ctx context.Context, id int64) error {
	rec, err := e.store.Memories.GetByID(ctx, id, true)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted while queued; make sure no vector lingers.
		if err := e.index.Delete(ctx, id); err != nil {
			return apperrors.StorageFailure("vector delete", err).AsRetryable()
		}
		return nil
	}
	if err != nil {
		return apperrors.StorageFailure("load memory", err).AsRetryable()
	}

	content, err := e.loadContent(ctx, rec)
	if err != nil {
		// Corrupted payloads cannot be embedded; drop the stale vector.
		if apperrors.IsKind(err, apperrors.KindCorrupted) {
			_ = e.index.Delete(ctx, id)
			return nil
		}
		return err
	}
	if len(content) == 0 && rec.Title == "" {
		_ = e.index.Delete(ctx, id)
		return nil
	}

	vec, err := e.embedQuery(ctx, embedText(rec.Title, content))
	if err != nil {
		return asRetryableErr(err)
	}

	var ctxID int64
	if rec.ContextID != nil {
		ctxID = *rec.ContextID
	}
	meta := store.VectorMeta{
		OwnerID:   rec.OwnerID,
		ContextID: ctxID,
		Provider:  e.embedder.Tag(),
		IndexedAt: time.Now().UTC(),
	}
	if err := e.index.Upsert(ctx, id, vec, meta); err != nil {
		return apperrors.StorageFailure("vector upsert", err).AsRetryable()
	}

	if err := e.store.Memories.MarkEmbedded(ctx, id, e.embedder.Tag(), meta.IndexedAt); err != nil {
		return apperrors.StorageFailure("mark embedded", err).AsRetryable()
	}
	return nil
}

func asRetryableErr(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.AsRetryable()
	}
	return err
}

// reconcile repairs store/index parity at startup: memories missing
// from the index or embedded under a different provider tag are
// re-enqueued, and index entries without an active memory are removed.
// The loop is cheap enough to run on every start.
func (e *Engine) reconcile(ctx context.Context) error {
	activeIDs, err := e.store.Memories.ActiveIDs(ctx)
	if err != nil {
		return apperrors.StorageFailure("list active ids", err)
	}
	active := make(map[int64]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}

	stale := 0
	for _, id := range e.index.AllIDs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !active[id] {
			if err := e.index.Delete(ctx, id); err != nil {
				e.log.Warn("reconcile delete failed", "memory_id", id, "error", err)
				continue
			}
			stale++
		}
	}

	pending, err := e.store.Memories.PendingEmbeddings(ctx, e.embedder.Tag(), len(activeIDs))
	if err != nil {
		return apperrors.StorageFailure("list pending embeddings", err)
	}
	queued := make(map[int64]bool, len(pending))
	enqueued := 0
	for _, rec := range pending {
		if err := e.queue.Enqueue(async.Job{Kind: async.JobUpsert, MemoryID: rec.ID}); err != nil {
			// Queue full; the rest waits for the next start or reindex.
			e.log.Info("reconcile enqueue stopped", "pending_left", len(pending)-enqueued)
			break
		}
		queued[rec.ID] = true
		enqueued++
	}

	// Memories marked embedded whose vectors vanished (index file loss).
	missing := 0
	for _, id := range activeIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if queued[id] || e.index.Contains(id) {
			continue
		}
		missing++
		if err := e.queue.Enqueue(async.Job{Kind: async.JobUpsert, MemoryID: id}); err != nil {
			break
		}
	}

	if stale > 0 || enqueued > 0 || missing > 0 {
		e.log.Info("parity reconciled",
			"stale_vectors", stale,
			"re_enqueued", enqueued,
			"missing_vectors", missing)
	}
	return nil
}

// Reindex rebuilds the vector index from scratch: clears it, embeds
// every active memory with bounded concurrency, and marks each as
// embedded. Progress is reported through p when non-nil.
func (e *Engine) Reindex(ctx context.Context, p *async.Progress) (n int, err error) {
	start := time.Now()
	defer e.finish("reindex", start, &err)
	if p == nil {
		p = async.NewProgress()
	}

	p.Begin(0)
	ids, err := e.store.Memories.ActiveIDs(ctx)
	if err != nil {
		err = apperrors.StorageFailure("list active ids", err)
		p.SetError(err)
		return 0, err
	}
	p.SetTotal(len(ids))

	if err := e.index.Clear(); err != nil {
		err = apperrors.StorageFailure("clear index", err)
		p.SetError(err)
		return 0, err
	}

	p.SetStage(async.StageEmbedding)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexWorkers)
	for _, id := range ids {
		g.Go(func() error {
			jobErr := e.embedAndUpsert(gctx, id)
			p.Step(jobErr == nil)
			if jobErr != nil {
				e.log.Warn("reindex item failed", "memory_id", id, "error", jobErr)
			}
			return nil // item failures do not abort the rebuild
		})
	}
	if err := g.Wait(); err != nil {
		p.SetError(err)
		return 0, err
	}
	if ctx.Err() != nil {
		p.SetError(ctx.Err())
		return 0, ctx.Err()
	}

	p.SetStage(async.StageSaving)
	snap := p.Snapshot()
	p.SetReady()

	e.log.Info("reindex complete",
		"total", snap.Total,
		"failed", snap.Failed,
		"elapsed", snap.Elapsed)
	return snap.Processed - snap.Failed, nil
}
