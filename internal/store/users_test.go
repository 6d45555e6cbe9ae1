package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepo_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.Users.Create(ctx, "aiko", "aiko@example.com", "$2a$10$fakehash")
	require.NoError(t, err)
	require.NotZero(t, u.ID)
	assert.True(t, u.Active)

	byName, err := s.Users.GetByUsername(ctx, "aiko")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
	assert.Equal(t, "aiko@example.com", byName.Email)
	assert.Equal(t, "$2a$10$fakehash", byName.PasswordHash)

	byID, err := s.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "aiko", byID.Username)
}

func TestUserRepo_Duplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Users.Create(ctx, "sam", "sam@example.com", "h1")
	require.NoError(t, err)

	_, err = s.Users.Create(ctx, "sam", "other@example.com", "h2")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.Users.Create(ctx, "sam2", "sam@example.com", "h3")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepo_Deactivate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.Users.Create(ctx, "tmp", "tmp@example.com", "h")
	require.NoError(t, err)

	require.NoError(t, s.Users.Deactivate(ctx, u.ID))

	got, err := s.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, s.Users.Deactivate(ctx, 9999), ErrNotFound)
}

func TestUserRepo_Missing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Users.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditRepo_RecordAndList(t *testing.T) {
	// Given: three recorded mutations for owner 1, one for owner 2
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Audit.Record(ctx, 1, "create", "memory", 10, `{"title":"a"}`))
	require.NoError(t, s.Audit.Record(ctx, 1, "update", "memory", 10, ""))
	require.NoError(t, s.Audit.Record(ctx, 1, "delete", "memory", 10, ""))
	require.NoError(t, s.Audit.Record(ctx, 2, "create", "context", 4, ""))

	// When: listing owner 1's recent entries
	entries, err := s.Audit.ListRecent(ctx, 1, 2)
	require.NoError(t, err)

	// Then: newest first, limited, scoped to the owner
	require.Len(t, entries, 2)
	assert.Equal(t, "delete", entries[0].Action)
	assert.Equal(t, "update", entries[1].Action)
	assert.Equal(t, int64(10), entries[0].EntityID)
}
