package engine

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/membank-io/membank/internal/cache"
	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/store"
)

const maxContextNameRunes = 200

// CreateContext creates a named grouping for memories.
func (e *Engine) CreateContext(ctx context.Context, in ContextInput) (c *Context, err error) {
	start := time.Now()
	defer e.finish("create_context", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if in.OwnerID <= 0 {
		return nil, apperrors.InvalidInput("owner id must be positive")
	}
	name := strings.TrimSpace(in.Name)
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return nil, apperrors.InvalidInput("context name must not be empty")
	}
	if n > maxContextNameRunes {
		return nil, apperrors.InvalidInput("context name exceeds %d characters", maxContextNameRunes)
	}
	level, err := validateAccessLevel(in.AccessLevel)
	if err != nil {
		return nil, err
	}

	rec := &store.Context{
		OwnerID:     in.OwnerID,
		Name:        name,
		Description: in.Description,
		Metadata:    in.Metadata,
		AccessLevel: level,
	}
	if err := e.store.Contexts.Create(ctx, rec); err != nil {
		return nil, apperrors.StorageFailure("create context", err)
	}

	e.cache.InvalidatePrefix(ctx, cache.StatsKey(in.OwnerID))
	e.audit(ctx, in.OwnerID, "context.create", "context", rec.ID, rec.Name)
	return contextView(rec), nil
}

// GetContext loads one context, applying the same read rules as
// memories.
func (e *Engine) GetContext(ctx context.Context, callerID, id int64) (c *Context, err error) {
	start := time.Now()
	defer e.finish("get_context", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rec, err := e.store.Contexts.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ContextNotFound(id)
	}
	if err != nil {
		return nil, apperrors.StorageFailure("load context", err)
	}
	if !canRead(callerID, rec.OwnerID, rec.AccessLevel) {
		return nil, apperrors.AccessDenied("context", id)
	}
	return contextView(rec), nil
}

// ListContexts returns the owner's contexts, oldest first.
func (e *Engine) ListContexts(ctx context.Context, ownerID int64) (out []*Context, err error) {
	start := time.Now()
	defer e.finish("list_contexts", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	recs, err := e.store.Contexts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperrors.StorageFailure("list contexts", err)
	}
	out = make([]*Context, len(recs))
	for i, rec := range recs {
		out[i] = contextView(rec)
	}
	return out, nil
}
