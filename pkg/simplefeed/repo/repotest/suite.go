// Package repotest holds the behaviour every simplefeed.Repository must share.
// Backend packages run it from their own tests.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-feed/pkg/simplefeed"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) simplefeed.Repository

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewRecord builds a stored-shape record of kind created at base+offset.
func NewRecord(owner uuid.UUID, kind simplefeed.Kind, offset time.Duration) *simplefeed.ContentRecord {
	at := base.Add(offset)
	id := uuid.New()
	return &simplefeed.ContentRecord{
		ID:        id,
		OwnerID:   owner,
		Kind:      kind,
		Caption:   "caption " + id.String()[:8],
		Media:     simplefeed.MediaRef{ExternalID: "media/" + id.String(), URL: "https://cdn.example.com/" + id.String()},
		Likes:     []uuid.UUID{},
		Comments:  []simplefeed.Comment{},
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Run exercises newRepo against the Repository contract.
func Run(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewRecord(uuid.New(), simplefeed.KindPost, 0)
		require.NoError(t, repo.CreateContent(ctx, rec))

		got, err := repo.GetContent(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.OwnerID, got.OwnerID)
		assert.Equal(t, rec.Kind, got.Kind)
		assert.Equal(t, rec.Caption, got.Caption)
		assert.Equal(t, rec.Media, got.Media)
		assert.Empty(t, got.Likes)
		assert.Empty(t, got.Comments)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetContent(ctx, uuid.New())
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewRecord(uuid.New(), simplefeed.KindPost, 0)
		require.NoError(t, repo.CreateContent(ctx, rec))

		require.NoError(t, repo.DeleteContent(ctx, rec.ID))
		_, err := repo.GetContent(ctx, rec.ID)
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
		assert.ErrorIs(t, repo.DeleteContent(ctx, rec.ID), simplefeed.ErrContentNotFound)
	})

	t.Run("ToggleLike", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewRecord(uuid.New(), simplefeed.KindPost, 0)
		require.NoError(t, repo.CreateContent(ctx, rec))
		user := uuid.New()

		got, liked, err := repo.ToggleLike(ctx, rec.ID, user, base.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, liked)
		assert.Equal(t, []uuid.UUID{user}, got.Likes)
		assert.Equal(t, int64(2), got.Version)

		got, liked, err = repo.ToggleLike(ctx, rec.ID, user, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.False(t, liked)
		assert.Empty(t, got.Likes)
		assert.Equal(t, int64(3), got.Version)

		_, _, err = repo.ToggleLike(ctx, uuid.New(), user, base)
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
	})

	t.Run("ConcurrentToggleLike", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewRecord(uuid.New(), simplefeed.KindPost, 0)
		require.NoError(t, repo.CreateContent(ctx, rec))

		// Each user toggles twice and ends up not liking; the extra users
		// toggle once and must all be present.
		const pairs, singles = 8, 8
		var wg sync.WaitGroup
		var singleIDs []uuid.UUID
		for i := 0; i < pairs; i++ {
			user := uuid.New()
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 2; k++ {
					_, _, err := repo.ToggleLike(ctx, rec.ID, user, base)
					assert.NoError(t, err)
				}
			}()
		}
		for i := 0; i < singles; i++ {
			user := uuid.New()
			singleIDs = append(singleIDs, user)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := repo.ToggleLike(ctx, rec.ID, user, base)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.GetContent(ctx, rec.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, singleIDs, got.Likes)
		assert.Equal(t, int64(1+2*pairs+singles), got.Version)
	})

	t.Run("Comments", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewRecord(uuid.New(), simplefeed.KindReel, 0)
		require.NoError(t, repo.CreateContent(ctx, rec))

		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			c := simplefeed.Comment{
				ID:         uuid.New(),
				AuthorID:   uuid.New(),
				AuthorName: fmt.Sprintf("user%d", i),
				Body:       fmt.Sprintf("comment %d", i),
				CreatedAt:  base.Add(time.Duration(i+1) * time.Second),
			}
			ids = append(ids, c.ID)
			got, err := repo.AppendComment(ctx, rec.ID, c)
			require.NoError(t, err)
			require.Len(t, got.Comments, i+1)
			assert.Equal(t, c.Body, got.Comments[i].Body)
			assert.Equal(t, c.AuthorName, got.Comments[i].AuthorName)
		}

		got, err := repo.RemoveComment(ctx, rec.ID, ids[1], base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, got.Comments, 2)
		assert.Equal(t, ids[0], got.Comments[0].ID)
		assert.Equal(t, ids[2], got.Comments[1].ID)

		_, err = repo.RemoveComment(ctx, rec.ID, ids[1], base.Add(time.Hour))
		assert.ErrorIs(t, err, simplefeed.ErrCommentNotFound)

		_, err = repo.RemoveComment(ctx, uuid.New(), ids[0], base)
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)

		_, err = repo.AppendComment(ctx, uuid.New(), simplefeed.Comment{ID: uuid.New(), AuthorID: uuid.New(), Body: "x", CreatedAt: base})
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
	})

	t.Run("ConcurrentComments", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewRecord(uuid.New(), simplefeed.KindPost, 0)
		require.NoError(t, repo.CreateContent(ctx, rec))

		const n = 10
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.AppendComment(ctx, rec.ID, simplefeed.Comment{
					ID:        uuid.New(),
					AuthorID:  uuid.New(),
					Body:      fmt.Sprintf("c%d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := repo.GetContent(ctx, rec.ID)
		require.NoError(t, err)
		assert.Len(t, got.Comments, n)
	})

	t.Run("UpdateCaption", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewRecord(uuid.New(), simplefeed.KindPost, 0)
		require.NoError(t, repo.CreateContent(ctx, rec))

		got, err := repo.UpdateCaption(ctx, rec.ID, "new caption", nil, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "new caption", got.Caption)
		assert.Equal(t, int64(2), got.Version)

		stale := int64(1)
		_, err = repo.UpdateCaption(ctx, rec.ID, "stale", &stale, base.Add(time.Minute))
		assert.ErrorIs(t, err, simplefeed.ErrConflict)

		current := int64(2)
		got, err = repo.UpdateCaption(ctx, rec.ID, "", &current, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "", got.Caption)

		_, err = repo.UpdateCaption(ctx, uuid.New(), "x", nil, base)
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
	})

	t.Run("ListFeedOrderAndPartition", func(t *testing.T) {
		repo := newRepo(t)
		owner := uuid.New()
		var posts []*simplefeed.ContentRecord
		for i := 0; i < 4; i++ {
			p := NewRecord(owner, simplefeed.KindPost, time.Duration(i)*time.Minute)
			posts = append(posts, p)
			require.NoError(t, repo.CreateContent(ctx, p))
		}
		reel := NewRecord(owner, simplefeed.KindReel, 10*time.Minute)
		require.NoError(t, repo.CreateContent(ctx, reel))

		got, err := repo.ListFeed(ctx, simplefeed.FeedQuery{Kind: simplefeed.KindPost, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 4)
		for i, rec := range got {
			assert.Equal(t, posts[3-i].ID, rec.ID)
		}

		got, err = repo.ListFeed(ctx, simplefeed.FeedQuery{Kind: simplefeed.KindPost, Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)

		cursor := got[1].CursorOf()
		got, err = repo.ListFeed(ctx, simplefeed.FeedQuery{Kind: simplefeed.KindPost, Before: &cursor, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, posts[1].ID, got[0].ID)
		assert.Equal(t, posts[0].ID, got[1].ID)

		got, err = repo.ListFeed(ctx, simplefeed.FeedQuery{Kind: simplefeed.KindReel, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, reel.ID, got[0].ID)
	})

	t.Run("ListFeedTiedTimestamps", func(t *testing.T) {
		repo := newRepo(t)
		owner := uuid.New()
		want := map[uuid.UUID]bool{}
		for i := 0; i < 7; i++ {
			rec := NewRecord(owner, simplefeed.KindPost, 0)
			want[rec.ID] = true
			require.NoError(t, repo.CreateContent(ctx, rec))
		}

		seen := map[uuid.UUID]bool{}
		var before *simplefeed.Cursor
		var last *simplefeed.ContentRecord
		for pages := 0; pages < 10; pages++ {
			got, err := repo.ListFeed(ctx, simplefeed.FeedQuery{Kind: simplefeed.KindPost, Before: before, Limit: 3})
			require.NoError(t, err)
			if len(got) == 0 {
				break
			}
			for _, rec := range got {
				assert.False(t, seen[rec.ID], "record %s returned twice", rec.ID)
				if last != nil {
					assert.True(t, simplefeed.FeedOrderLess(last, rec), "records out of order")
				}
				seen[rec.ID] = true
				last = rec
			}
			c := got[len(got)-1].CursorOf()
			before = &c
		}
		assert.Equal(t, want, seen)
	})

	t.Run("ListFeedTimestampCursor", func(t *testing.T) {
		repo := newRepo(t)
		owner := uuid.New()
		older := NewRecord(owner, simplefeed.KindPost, 0)
		newer := NewRecord(owner, simplefeed.KindPost, time.Hour)
		require.NoError(t, repo.CreateContent(ctx, older))
		require.NoError(t, repo.CreateContent(ctx, newer))

		got, err := repo.ListFeed(ctx, simplefeed.FeedQuery{
			Kind:   simplefeed.KindPost,
			Before: &simplefeed.Cursor{CreatedAt: newer.CreatedAt},
			Limit:  10,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, older.ID, got[0].ID)
	})

	t.Run("Profiles", func(t *testing.T) {
		repo := newRepo(t)
		alice := &simplefeed.Profile{ID: uuid.New(), Name: "alice", AvatarURL: "https://cdn.example.com/a.png"}
		require.NoError(t, repo.UpsertProfile(ctx, alice))
		require.NoError(t, repo.UpsertProfile(ctx, &simplefeed.Profile{ID: alice.ID, Name: "alice2"}))

		missing := uuid.New()
		got, err := repo.GetProfiles(ctx, []uuid.UUID{alice.ID, missing})
		require.NoError(t, err)
		require.Contains(t, got, alice.ID)
		assert.NotContains(t, got, missing)
		assert.Equal(t, "alice2", got[alice.ID].Name)
		assert.Equal(t, alice.AvatarURL, got[alice.ID].AvatarURL)

		got, err = repo.GetProfiles(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
