// Package engine implements the memory operations behind every surface:
// create, read, search, relations, ingestion, and analysis. It owns the
// write path invariants: the SQLite store commits first, then embedding
// and cache side effects run post-commit and never roll a write back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/membank-io/membank/internal/async"
	"github.com/membank-io/membank/internal/cache"
	"github.com/membank-io/membank/internal/embed"
	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/payload"
	"github.com/membank-io/membank/internal/store"
	"github.com/membank-io/membank/internal/telemetry"
)

// ErrNilDependency is returned by New when a required dependency is nil.
var ErrNilDependency = errors.New("engine: nil dependency")

// Limits bounds engine work. Zero values take the defaults below.
type Limits struct {
	// MaxContentBytes caps a single memory payload before encoding.
	MaxContentBytes int64

	// OpTimeout bounds one public operation end to end.
	OpTimeout time.Duration
	// EmbedTimeout bounds a single embedding call.
	EmbedTimeout time.Duration
	// QueryTimeout bounds a vector index query.
	QueryTimeout time.Duration

	// BatchSize is the checkpoint interval for bulk operations.
	BatchSize int
	// TopKMultiplier widens vector queries before post-filtering.
	TopKMultiplier int
	// MaxTopK caps the widened k.
	MaxTopK int
	// AutoRelateLimit caps relations created per auto-relate pass.
	AutoRelateLimit int
	// MaxChapterBytes drops oversized chapters during ingestion.
	MaxChapterBytes int64
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxContentBytes: 8 << 20,
		OpTimeout:       30 * time.Second,
		EmbedTimeout:    10 * time.Second,
		QueryTimeout:    5 * time.Second,
		BatchSize:       100,
		TopKMultiplier:  4,
		MaxTopK:         200,
		AutoRelateLimit: 5,
		MaxChapterBytes: 1 << 20,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxContentBytes <= 0 {
		l.MaxContentBytes = d.MaxContentBytes
	}
	if l.OpTimeout <= 0 {
		l.OpTimeout = d.OpTimeout
	}
	if l.EmbedTimeout <= 0 {
		l.EmbedTimeout = d.EmbedTimeout
	}
	if l.QueryTimeout <= 0 {
		l.QueryTimeout = d.QueryTimeout
	}
	if l.BatchSize <= 0 {
		l.BatchSize = d.BatchSize
	}
	if l.TopKMultiplier <= 0 {
		l.TopKMultiplier = d.TopKMultiplier
	}
	if l.MaxTopK <= 0 {
		l.MaxTopK = d.MaxTopK
	}
	if l.AutoRelateLimit <= 0 {
		l.AutoRelateLimit = d.AutoRelateLimit
	}
	if l.MaxChapterBytes <= 0 {
		l.MaxChapterBytes = d.MaxChapterBytes
	}
	return l
}

// Engine coordinates the primary store, vector index, cache, and
// embedding provider. Safe for concurrent use.
type Engine struct {
	store    *store.Store
	index    store.VectorIndex
	cache    cache.Cache
	embedder embed.Provider

	policy   payload.Policy
	limits   Limits
	cacheTTL time.Duration

	queue    *async.Queue
	queueCfg async.QueueConfig
	locks    *keyedLocks
	log      *slog.Logger
	metrics  *telemetry.Metrics
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithMetrics wires a telemetry collector set.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPolicy overrides the payload encoding policy.
func WithPolicy(p payload.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLimits overrides operational limits; zero fields keep defaults.
func WithLimits(l Limits) Option {
	return func(e *Engine) { e.limits = l.withDefaults() }
}

// WithQueueConfig overrides the embedding queue bounds.
func WithQueueConfig(cfg async.QueueConfig) Option {
	return func(e *Engine) { e.queueCfg = cfg }
}

// WithCacheTTL overrides the result cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

// New builds an engine over its four dependencies. All are required; the
// caller owns their lifecycles except the queue, which the engine runs
// between Start and Stop.
func New(st *store.Store, index store.VectorIndex, c cache.Cache, provider embed.Provider, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: store", ErrNilDependency)
	}
	if index == nil {
		return nil, fmt.Errorf("%w: vector index", ErrNilDependency)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: cache", ErrNilDependency)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: embedding provider", ErrNilDependency)
	}

	e := &Engine{
		store:    st,
		index:    index,
		cache:    c,
		embedder: provider,
		policy:   payload.DefaultPolicy(),
		limits:   DefaultLimits(),
		cacheTTL: cache.DefaultTTL,
		locks:    newKeyedLocks(),
		log:      slog.Default(),
		queueCfg: async.DefaultQueueConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "engine")
	e.queue = async.NewQueue(e.queueCfg, e.processJob, e.log)
	if e.metrics != nil {
		e.metrics.SetQueueDepth(func() float64 { return float64(e.queue.Pending()) })
	}
	return e, nil
}

// Start launches the embedding queue worker and the parity reconciler.
// The context bounds the worker's lifetime; cancel it or call Stop.
func (e *Engine) Start(ctx context.Context) {
	e.queue.Start(ctx)
	go func() {
		if err := e.reconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Warn("parity reconcile failed", "error", err)
		}
	}()
}

// Stop drains accepted background jobs and stops the worker. The context
// bounds the drain.
func (e *Engine) Stop(ctx context.Context) error {
	return e.queue.Stop(ctx)
}

// QueueDepth reports embedding jobs waiting or in flight.
func (e *Engine) QueueDepth() int { return e.queue.Pending() }

// Health probes each component.
func (e *Engine) Health(ctx context.Context) Health {
	h := Health{
		Vector:    e.index.Count() >= 0,
		Embedding: e.embedder.Available(ctx),
	}
	h.Database = e.store.Ping(ctx) == nil
	h.Cache = e.cache.Ping(ctx) == nil
	return h
}

// opContext applies the per-operation deadline.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.limits.OpTimeout)
}

// finish records metrics for op and maps context expiry onto the
// deadline error kind. Use via defer with a named error return.
func (e *Engine) finish(op string, start time.Time, errp *error) {
	if *errp != nil && errors.Is(*errp, context.DeadlineExceeded) &&
		!apperrors.IsKind(*errp, apperrors.KindDeadlineExceeded) {
		*errp = apperrors.DeadlineExceeded(op)
	}
	e.metrics.ObserveOp(op, start, *errp)
}

// embedText builds the canonical text embedded for a memory. Title and
// content embed together so short titles still contribute signal.
func embedText(title string, content []byte) string {
	if len(content) == 0 {
		return title
	}
	return title + "\n" + string(content)
}

// loadContent decodes the payload of a record loaded with its payload
// columns. A decode failure flags the memory corrupted in the store and
// returns a corrupted error; the record itself stays readable without
// content.
func (e *Engine) loadContent(ctx context.Context, m *store.Memory) ([]byte, error) {
	stream := m.Content
	if m.Chunked {
		chunks, err := e.store.Memories.GetChunks(ctx, m.ID, m.ChunkCount)
		if err != nil {
			if errors.Is(err, store.ErrChunkGap) {
				e.flagCorrupted(ctx, m.ID, m.OwnerID)
				return nil, apperrors.Corrupted(m.ID, "chunk sequence gap")
			}
			return nil, apperrors.StorageFailure("load chunks", err)
		}
		stream = payload.Join(chunks)
	}

	content, err := payload.Decode(payload.CodecTag(m.Codec), m.ContentHash, m.OriginalBytes, stream)
	if err != nil {
		switch {
		case errors.Is(err, payload.ErrHashMismatch):
			e.flagCorrupted(ctx, m.ID, m.OwnerID)
			return nil, apperrors.Corrupted(m.ID, "content hash mismatch")
		case errors.Is(err, payload.ErrBadStream):
			e.flagCorrupted(ctx, m.ID, m.OwnerID)
			return nil, apperrors.Corrupted(m.ID, "payload stream damaged")
		}
		return nil, apperrors.StorageFailure("decode payload", err)
	}
	return content, nil
}

func (e *Engine) flagCorrupted(ctx context.Context, id, ownerID int64) {
	corrupted := true
	if err := e.store.Memories.UpdateFields(ctx, id, store.MemoryPatch{Corrupted: &corrupted}); err != nil {
		e.log.Warn("flag corrupted failed", "memory_id", id, "error", err)
	}
	e.cache.InvalidatePrefix(ctx, cache.MemoryKey(id))
	e.cache.InvalidatePrefix(ctx, cache.StatsKey(ownerID))
}

// canRead applies the access rules: owners always read their records,
// public records are open, user records need any authenticated caller.
func canRead(callerID int64, ownerID int64, level store.AccessLevel) bool {
	if callerID == ownerID {
		return true
	}
	switch level {
	case store.AccessPublic:
		return true
	case store.AccessUser:
		return callerID > 0
	default:
		return false
	}
}

// invalidateOwner drops the owner's derived cache entries after a write.
func (e *Engine) invalidateOwner(ctx context.Context, ownerID int64, ids ...int64) {
	e.cache.InvalidatePrefix(ctx, cache.SemanticPrefix(ownerID))
	e.cache.InvalidatePrefix(ctx, cache.StatsKey(ownerID))
	for _, id := range ids {
		e.cache.InvalidatePrefix(ctx, cache.MemoryKey(id))
	}
}

// audit records a mutation; failures log and never fail the operation.
func (e *Engine) audit(ctx context.Context, ownerID int64, action, entity string, entityID int64, detail string) {
	if err := e.store.Audit.Record(ctx, ownerID, action, entity, entityID, detail); err != nil {
		e.log.Warn("audit record failed", "action", action, "error", err)
	}
}

// validateContext checks that a referenced context exists and belongs to
// the owner.
func (e *Engine) validateContext(ctx context.Context, ownerID int64, contextID *int64) error {
	if contextID == nil {
		return nil
	}
	c, err := e.store.Contexts.GetByID(ctx, *contextID)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.ContextNotFound(*contextID)
	}
	if err != nil {
		return apperrors.StorageFailure("load context", err)
	}
	if c.OwnerID != ownerID {
		return apperrors.ContextNotFound(*contextID)
	}
	return nil
}
