package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/store"
)

const maxRelationTypeRunes = 64

func validateRelationInput(in RelationInput) error {
	if in.SourceID <= 0 || in.TargetID <= 0 {
		return apperrors.InvalidInput("relation endpoints must be positive ids")
	}
	if in.SourceID == in.TargetID {
		return apperrors.InvalidInput("a memory cannot relate to itself")
	}
	if in.Type == "" {
		return apperrors.InvalidInput("relation type must not be empty")
	}
	if utf8.RuneCountInString(in.Type) > maxRelationTypeRunes {
		return apperrors.InvalidInput("relation type exceeds %d characters", maxRelationTypeRunes)
	}
	if in.Strength < 0 || in.Strength > 1 {
		return apperrors.InvalidInput("strength must be within [0,1], got %g", in.Strength)
	}
	return nil
}

// checkEndpoint verifies an endpoint exists, is active, and belongs to
// the owner. Foreign memories are reported as missing so ids of other
// owners do not leak.
func (e *Engine) checkEndpoint(ctx context.Context, ownerID, id int64) error {
	rec, err := e.store.Memories.GetByID(ctx, id, false)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound("memory", id)
	}
	if err != nil {
		return apperrors.StorageFailure("load endpoint", err)
	}
	if rec.OwnerID != ownerID {
		return apperrors.NotFound("memory", id)
	}
	return nil
}

// CreateRelation adds one typed edge between two owned memories. An
// identical edge dedups: the existing row is returned with Created
// false.
func (e *Engine) CreateRelation(ctx context.Context, ownerID int64, in RelationInput) (rel *Relation, err error) {
	start := time.Now()
	defer e.finish("create_relation", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := validateRelationInput(in); err != nil {
		return nil, err
	}
	if in.Strength == 0 {
		in.Strength = 1
	}
	if err := e.checkEndpoint(ctx, ownerID, in.SourceID); err != nil {
		return nil, err
	}
	if err := e.checkEndpoint(ctx, ownerID, in.TargetID); err != nil {
		return nil, err
	}

	stored, created, err := e.store.Relations.Insert(ctx, &store.Relation{
		OwnerID:  ownerID,
		SourceID: in.SourceID,
		TargetID: in.TargetID,
		Type:     in.Type,
		Strength: in.Strength,
		Metadata: in.Metadata,
	})
	if err != nil {
		return nil, apperrors.StorageFailure("create relation", err)
	}

	if created {
		e.invalidateOwner(ctx, ownerID)
		e.audit(ctx, ownerID, "relation.create", "relation", stored.ID,
			fmt.Sprintf("%d-[%s]->%d", in.SourceID, in.Type, in.TargetID))
	}
	return relationView(stored, created), nil
}

// BulkCreateRelations validates every edge up front, then inserts them
// in checkpointed batches. A validation failure reports the failing
// index with nothing committed; a store failure mid-run keeps earlier
// batches and reports where it stopped.
func (e *Engine) BulkCreateRelations(ctx context.Context, ownerID int64, items []RelationInput) (res *BulkRelationsResult, err error) {
	start := time.Now()
	defer e.finish("bulk_create_relations", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if len(items) == 0 {
		return nil, apperrors.InvalidInput("no relations to create")
	}

	verified := make(map[int64]bool)
	checkOnce := func(id int64) error {
		if verified[id] {
			return nil
		}
		if err := e.checkEndpoint(ctx, ownerID, id); err != nil {
			return err
		}
		verified[id] = true
		return nil
	}

	rels := make([]*store.Relation, 0, len(items))
	for i, in := range items {
		if err := validateRelationInput(in); err != nil {
			return &BulkRelationsResult{FailedIndex: i}, withIndex(err, i)
		}
		if in.Strength == 0 {
			in.Strength = 1
		}
		if err := checkOnce(in.SourceID); err != nil {
			return &BulkRelationsResult{FailedIndex: i}, withIndex(err, i)
		}
		if err := checkOnce(in.TargetID); err != nil {
			return &BulkRelationsResult{FailedIndex: i}, withIndex(err, i)
		}
		rels = append(rels, &store.Relation{
			OwnerID:  ownerID,
			SourceID: in.SourceID,
			TargetID: in.TargetID,
			Type:     in.Type,
			Strength: in.Strength,
			Metadata: in.Metadata,
		})
	}

	created, failedIdx, err := e.store.Relations.BulkInsert(ctx, rels, e.limits.BatchSize)
	if created > 0 {
		e.invalidateOwner(ctx, ownerID)
		e.audit(ctx, ownerID, "relation.bulk_create", "relation", 0,
			fmt.Sprintf("count=%d", created))
	}
	if err != nil {
		return &BulkRelationsResult{Created: created, FailedIndex: failedIdx},
			withIndex(apperrors.StorageFailure("bulk create relations", err), failedIdx)
	}
	return &BulkRelationsResult{
		Created:     created,
		Duplicates:  len(rels) - created,
		FailedIndex: -1,
	}, nil
}

// GetMemoryRelations lists every edge touching a memory with endpoint
// titles, incoming and outgoing alike.
func (e *Engine) GetMemoryRelations(ctx context.Context, ownerID, memoryID int64) (out []*RelatedMemory, err error) {
	start := time.Now()
	defer e.finish("get_memory_relations", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.checkEndpoint(ctx, ownerID, memoryID); err != nil {
		return nil, err
	}

	recs, err := e.store.Relations.ListForMemory(ctx, memoryID)
	if err != nil {
		return nil, apperrors.StorageFailure("list relations", err)
	}

	out = make([]*RelatedMemory, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &RelatedMemory{
			Relation:    *relationView(&rec.Relation, false),
			SourceTitle: rec.SourceTitle,
			TargetTitle: rec.TargetTitle,
		})
	}
	return out, nil
}
