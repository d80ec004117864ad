package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepo_GetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, "alice", first.Login)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "second call must return the existing user")
}

func TestUserRepo_GetByLogin(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	got, err := repo.GetByLogin(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	created, err := repo.GetOrCreate(ctx, "bob")
	require.NoError(t, err)

	got, err = repo.GetByLogin(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
}
