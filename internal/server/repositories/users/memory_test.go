package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/server/models"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	a, err := r.Create(ctx, &models.User{Username: "carol"})
	require.NoError(t, err)
	require.Equal(t, int64(1), a.ID)
	require.False(t, a.CreatedAt.IsZero())

	_, err = r.Create(ctx, &models.User{Username: "alice"})
	require.NoError(t, err)

	_, err = r.Create(ctx, &models.User{Username: "alice"})
	require.ErrorIs(t, err, common.ErrAlreadyExists)

	got, err := r.GetByUsername(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.ID)

	_, err = r.GetByUsername(ctx, "ghost")
	require.ErrorIs(t, err, common.ErrNotFound)

	names, err := r.ListUsernames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "carol"}, names)

	found, err := r.FindExisting(ctx, []string{"ghost", "carol", "alice", "carol"})
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "carol"}, found)
}
