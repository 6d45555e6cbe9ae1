package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/membank-io/membank/internal/errors"
)

func TestEngine_CreateRelation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, 1, "cause", "first")
	b := mustCreate(t, e, 1, "effect", "second")

	rel, err := e.CreateRelation(ctx, 1, RelationInput{
		SourceID: a.ID,
		TargetID: b.ID,
		Type:     "leads_to",
		Strength: 0.8,
		Metadata: map[string]string{"note": "observed twice"},
	})
	require.NoError(t, err)
	assert.True(t, rel.Created)
	assert.Positive(t, rel.ID)
	assert.Equal(t, 0.8, rel.Strength)
	assert.Equal(t, "observed twice", rel.Metadata["note"])
}

func TestEngine_CreateRelationDefaultsStrength(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, 1, "a", "x")
	b := mustCreate(t, e, 1, "b", "x")

	rel, err := e.CreateRelation(ctx, 1, RelationInput{
		SourceID: a.ID, TargetID: b.ID, Type: "references",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, rel.Strength)
}

func TestEngine_CreateRelationDedup(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, 1, "a", "x")
	b := mustCreate(t, e, 1, "b", "x")
	in := RelationInput{SourceID: a.ID, TargetID: b.ID, Type: "references", Strength: 0.5}

	first, err := e.CreateRelation(ctx, 1, in)
	require.NoError(t, err)
	assert.True(t, first.Created)

	// The same tuple again returns the existing edge untouched.
	in.Strength = 0.9
	second, err := e.CreateRelation(ctx, 1, in)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0.5, second.Strength)

	// The reverse direction is a distinct edge.
	rev, err := e.CreateRelation(ctx, 1, RelationInput{
		SourceID: b.ID, TargetID: a.ID, Type: "references",
	})
	require.NoError(t, err)
	assert.True(t, rev.Created)
}

func TestEngine_CreateRelationValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, 1, "a", "x")
	b := mustCreate(t, e, 1, "b", "x")

	tests := []struct {
		name string
		in   RelationInput
		kind apperrors.Kind
	}{
		{"self relation", RelationInput{SourceID: a.ID, TargetID: a.ID, Type: "loops"}, apperrors.KindInvalidInput},
		{"empty type", RelationInput{SourceID: a.ID, TargetID: b.ID}, apperrors.KindInvalidInput},
		{"negative strength", RelationInput{SourceID: a.ID, TargetID: b.ID, Type: "t", Strength: -0.1}, apperrors.KindInvalidInput},
		{"strength above one", RelationInput{SourceID: a.ID, TargetID: b.ID, Type: "t", Strength: 1.1}, apperrors.KindInvalidInput},
		{"zero source", RelationInput{TargetID: b.ID, Type: "t"}, apperrors.KindInvalidInput},
		{"missing source", RelationInput{SourceID: 9999, TargetID: b.ID, Type: "t"}, apperrors.KindNotFound},
		{"missing target", RelationInput{SourceID: a.ID, TargetID: 9999, Type: "t"}, apperrors.KindNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CreateRelation(ctx, 1, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperrors.KindOf(err))
		})
	}
}

func TestEngine_CreateRelationForeignEndpointHidden(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mine := mustCreate(t, e, 1, "mine", "x")
	theirs := mustCreate(t, e, 2, "theirs", "x")

	// A foreign endpoint reads as not found, never as denied, so ids are
	// not probeable.
	_, err := e.CreateRelation(ctx, 1, RelationInput{
		SourceID: mine.ID, TargetID: theirs.ID, Type: "references",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestEngine_GetMemoryRelationsBothDirections(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	hub := mustCreate(t, e, 1, "hub", "x")
	in := mustCreate(t, e, 1, "incoming", "x")
	out := mustCreate(t, e, 1, "outgoing", "x")

	_, err := e.CreateRelation(ctx, 1, RelationInput{SourceID: in.ID, TargetID: hub.ID, Type: "points_at"})
	require.NoError(t, err)
	_, err = e.CreateRelation(ctx, 1, RelationInput{SourceID: hub.ID, TargetID: out.ID, Type: "points_at"})
	require.NoError(t, err)

	rels, err := e.GetMemoryRelations(ctx, 1, hub.ID)
	require.NoError(t, err)
	require.Len(t, rels, 2)

	titles := map[string]bool{}
	for _, r := range rels {
		titles[r.SourceTitle+"->"+r.TargetTitle] = true
	}
	assert.True(t, titles["incoming->hub"])
	assert.True(t, titles["hub->outgoing"])
}

func TestEngine_GetMemoryRelationsForeign(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	theirs := mustCreate(t, e, 2, "theirs", "x")

	_, err := e.GetMemoryRelations(ctx, 1, theirs.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestEngine_BulkCreateRelations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, 1, "a", "x")
	b := mustCreate(t, e, 1, "b", "x")
	c := mustCreate(t, e, 1, "c", "x")

	_, err := e.CreateRelation(ctx, 1, RelationInput{SourceID: a.ID, TargetID: b.ID, Type: "references"})
	require.NoError(t, err)

	res, err := e.BulkCreateRelations(ctx, 1, []RelationInput{
		{SourceID: a.ID, TargetID: b.ID, Type: "references"}, // duplicate
		{SourceID: b.ID, TargetID: c.ID, Type: "references"},
		{SourceID: a.ID, TargetID: c.ID, Type: "references"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, -1, res.FailedIndex)
}

func TestEngine_BulkCreateRelationsFailingIndex(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, e, 1, "a", "x")
	b := mustCreate(t, e, 1, "b", "x")

	res, err := e.BulkCreateRelations(ctx, 1, []RelationInput{
		{SourceID: a.ID, TargetID: b.ID, Type: "references"},
		{SourceID: a.ID, TargetID: 9999, Type: "references"},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	require.NotNil(t, res)
	assert.Equal(t, 1, res.FailedIndex)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "1", appErr.Detail["failed_index"])

	// Validation happens before any insert, so nothing was committed.
	rels, err := e.GetMemoryRelations(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestEngine_BulkCreateRelationsEmpty(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.BulkCreateRelations(context.Background(), 1, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}
