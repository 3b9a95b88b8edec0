package memory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	"github.com/tendant/simple-feed/pkg/simplefeed/repo/memory"
	"github.com/tendant/simple-feed/pkg/simplefeed/repo/repotest"
)

func TestMemoryRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simplefeed.Repository {
		return memory.New()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	rec := repotest.NewRecord(uuid.New(), simplefeed.KindPost, 0)
	require.NoError(t, repo.CreateContent(ctx, rec))

	rec.Caption = "mutated after create"
	got, err := repo.GetContent(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated after create", got.Caption)

	got.Likes = append(got.Likes, uuid.New())
	again, err := repo.GetContent(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Likes)
}

func TestMemoryRepository_DropsEnrichment(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	rec := repotest.NewRecord(uuid.New(), simplefeed.KindPost, 0)
	rec.Owner = &simplefeed.Profile{ID: rec.OwnerID, Name: "owner"}
	require.NoError(t, repo.CreateContent(ctx, rec))

	got, err := repo.GetContent(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Owner)
}
