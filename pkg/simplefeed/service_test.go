package simplefeed_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	memmedia "github.com/tendant/simple-feed/pkg/simplefeed/media/memory"
	"github.com/tendant/simple-feed/pkg/simplefeed/repo/memory"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := simplefeed.New(simplefeed.WithMediaGateway(memmedia.New()))
	assert.ErrorIs(t, err, simplefeed.ErrValidation)

	_, err = simplefeed.New(simplefeed.WithRepository(memory.New()))
	assert.ErrorIs(t, err, simplefeed.ErrValidation)

	svc, err := simplefeed.New(simplefeed.WithRepository(memory.New()), simplefeed.WithMediaGateway(memmedia.New()))
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1, u2, u3 := actor("u1"), actor("u2"), actor("u3")

	created := f.post(t, u1, simplefeed.KindPost, "Hello")

	page, err := f.svc.GetFeedPage(ctx, simplefeed.FeedRequest{Kind: simplefeed.KindPost, Limit: 5})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Hello", page.Items[0].Caption)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)

	res, err := f.svc.ToggleLike(ctx, u2, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Post Liked", res.Message)
	assert.True(t, res.Liked)
	assert.Equal(t, []uuid.UUID{u2.ID}, res.Content.Likes)

	res, err = f.svc.ToggleLike(ctx, u2, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Post Unliked", res.Message)
	assert.False(t, res.Liked)
	assert.Empty(t, res.Content.Likes)

	_, err = f.svc.DeleteComment(ctx, u3, created.ID, "")
	require.Error(t, err)
	var verr *simplefeed.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Please give comment id", verr.Message)
}

func TestCreateContent(t *testing.T) {
	ctx := context.Background()

	t.Run("StoresRecordAndMedia", func(t *testing.T) {
		f := newFixture(t)
		owner := actor("alice")

		content := f.post(t, owner, simplefeed.KindPost, "first")
		assert.Equal(t, owner.ID, content.OwnerID)
		assert.Equal(t, simplefeed.KindPost, content.Kind)
		assert.Equal(t, int64(1), content.Version)
		assert.Empty(t, content.Likes)
		assert.Empty(t, content.Comments)
		require.NotNil(t, content.Owner)
		assert.Equal(t, "alice", content.Owner.Name)

		data, ok := f.media.Get(content.Media.ExternalID)
		require.True(t, ok)
		assert.Equal(t, []byte("media bytes"), data)
		assert.Contains(t, content.Media.ExternalID, "posts/objects/")
	})

	t.Run("ReelUploadedAsVideo", func(t *testing.T) {
		f := newFixture(t)
		content := f.post(t, actor("bob"), simplefeed.KindReel, "clip")
		assert.Equal(t, simplefeed.KindReel, content.Kind)
		assert.True(t, f.media.IsVideo(content.Media.ExternalID))
		assert.Contains(t, content.Media.ExternalID, "reels/objects/")
	})

	t.Run("DefaultsToPost", func(t *testing.T) {
		f := newFixture(t)
		content := f.post(t, actor("carol"), "", "no kind")
		assert.Equal(t, simplefeed.KindPost, content.Kind)
	})

	tests := []struct {
		name  string
		req   simplefeed.CreateContentRequest
		field string
	}{
		{
			name:  "missing actor",
			req:   simplefeed.CreateContentRequest{Media: []byte("x")},
			field: "actor",
		},
		{
			name:  "empty media",
			req:   simplefeed.CreateContentRequest{Actor: actor("a")},
			field: "file",
		},
		{
			name:  "unknown kind",
			req:   simplefeed.CreateContentRequest{Actor: actor("a"), Kind: "story", Media: []byte("x")},
			field: "type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateContent(ctx, tt.req)
			var verr *simplefeed.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)

			uploads, _ := f.media.counts()
			assert.Zero(t, uploads)
		})
	}
}

func TestCreateContent_FailClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.media.uploadFailures = -1

	_, err := f.svc.CreateContent(ctx, simplefeed.CreateContentRequest{
		Actor: actor("alice"),
		Media: []byte("x"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, simplefeed.ErrUploadFailed)
	assert.ErrorIs(t, err, errTransient)

	uploads, _ := f.media.counts()
	assert.Equal(t, 3, uploads)

	page, err := f.svc.GetFeedPage(ctx, simplefeed.FeedRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestCreateContent_RetriesTransientUpload(t *testing.T) {
	f := newFixture(t)
	f.media.uploadFailures = 2

	content, err := f.svc.CreateContent(context.Background(), simplefeed.CreateContentRequest{
		Actor: actor("alice"),
		Media: []byte("x"),
	})
	require.NoError(t, err)
	assert.NotNil(t, content)

	uploads, _ := f.media.counts()
	assert.Equal(t, 3, uploads)
}

func TestCreateContent_RejectedUploadIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.media.uploadFailures = -1
	f.media.uploadErr = fmt.Errorf("%w: access denied", simplefeed.ErrMediaRejected)

	_, err := f.svc.CreateContent(context.Background(), simplefeed.CreateContentRequest{
		Actor: actor("alice"),
		Media: []byte("x"),
	})
	assert.ErrorIs(t, err, simplefeed.ErrUploadFailed)

	uploads, _ := f.media.counts()
	assert.Equal(t, 1, uploads)
}

// failingCreateRepo rejects every insert.
type failingCreateRepo struct {
	*memory.Repository
}

func (r failingCreateRepo) CreateContent(ctx context.Context, content *simplefeed.ContentRecord) error {
	return errors.New("disk full")
}

func TestCreateContent_InsertFailureRemovesMedia(t *testing.T) {
	f := newFixture(t, simplefeed.WithRepository(failingCreateRepo{memory.New()}))

	_, err := f.svc.CreateContent(context.Background(), simplefeed.CreateContentRequest{
		Actor: actor("alice"),
		Media: []byte("x"),
	})
	require.Error(t, err)
	var cerr *simplefeed.ContentError
	assert.True(t, errors.As(err, &cerr))
	assert.Equal(t, "create", cerr.Op)

	assert.Equal(t, 0, f.media.Len())
	_, deletes := f.media.counts()
	assert.Equal(t, 1, deletes)
}

func TestGetContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := f.post(t, actor("alice"), simplefeed.KindPost, "hi")

	got, err := f.svc.GetContent(ctx, content.ID)
	require.NoError(t, err)
	assert.Equal(t, content.ID, got.ID)
	require.NotNil(t, got.Owner)
	assert.Equal(t, "alice", got.Owner.Name)

	_, err = f.svc.GetContent(ctx, uuid.New())
	assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
}

func TestToggleLike(t *testing.T) {
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ToggleLike(ctx, actor("a"), uuid.New())
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
	})

	t.Run("RequiresActor", func(t *testing.T) {
		f := newFixture(t)
		content := f.post(t, actor("a"), simplefeed.KindPost, "")
		_, err := f.svc.ToggleLike(ctx, simplefeed.Actor{}, content.ID)
		assert.ErrorIs(t, err, simplefeed.ErrValidation)
	})

	t.Run("ConcurrentDistinctActors", func(t *testing.T) {
		f := newFixture(t)
		content := f.post(t, actor("owner"), simplefeed.KindPost, "")

		const n = 50
		ids := make([]uuid.UUID, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			ids[i] = uuid.New()
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				res, err := f.svc.ToggleLike(ctx, simplefeed.Actor{ID: id}, content.ID)
				assert.NoError(t, err)
				if err == nil {
					assert.True(t, res.Liked)
				}
			}(ids[i])
		}
		wg.Wait()

		got, err := f.svc.GetContent(ctx, content.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, ids, got.Likes)
		assert.Equal(t, int64(1+n), got.Version)
	})
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	owner, author, other := actor("owner"), actor("author"), actor("other")

	setup := func(t *testing.T) (*fixture, *simplefeed.ContentRecord, uuid.UUID) {
		f := newFixture(t)
		content := f.post(t, owner, simplefeed.KindPost, "")
		updated, err := f.svc.AddComment(ctx, author, content.ID, "nice")
		require.NoError(t, err)
		require.Len(t, updated.Comments, 1)
		return f, updated, updated.Comments[0].ID
	}

	t.Run("AddComment", func(t *testing.T) {
		_, content, _ := setup(t)
		c := content.Comments[0]
		assert.Equal(t, author.ID, c.AuthorID)
		assert.Equal(t, "author", c.AuthorName)
		assert.Equal(t, "nice", c.Body)
		require.NotNil(t, c.Author)
		assert.Equal(t, "author", c.Author.Name)
	})

	t.Run("EmptyBody", func(t *testing.T) {
		f, content, _ := setup(t)
		_, err := f.svc.AddComment(ctx, author, content.ID, "   ")
		assert.ErrorIs(t, err, simplefeed.ErrValidation)
	})

	t.Run("AddToMissingContent", func(t *testing.T) {
		f, _, _ := setup(t)
		_, err := f.svc.AddComment(ctx, author, uuid.New(), "hi")
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
	})

	t.Run("OwnerMayDelete", func(t *testing.T) {
		f, content, cid := setup(t)
		updated, err := f.svc.DeleteComment(ctx, owner, content.ID, cid.String())
		require.NoError(t, err)
		assert.Empty(t, updated.Comments)
	})

	t.Run("AuthorMayDelete", func(t *testing.T) {
		f, content, cid := setup(t)
		updated, err := f.svc.DeleteComment(ctx, author, content.ID, cid.String())
		require.NoError(t, err)
		assert.Empty(t, updated.Comments)
	})

	t.Run("OtherIsForbidden", func(t *testing.T) {
		f, content, cid := setup(t)
		_, err := f.svc.DeleteComment(ctx, other, content.ID, cid.String())
		assert.ErrorIs(t, err, simplefeed.ErrForbidden)
		assert.EqualError(t, err, "You are not allowed to delete this comment")

		got, err := f.svc.GetContent(ctx, content.ID)
		require.NoError(t, err)
		assert.Len(t, got.Comments, 1)
	})

	t.Run("CheckOrder", func(t *testing.T) {
		f, content, _ := setup(t)

		// Missing content wins over a missing comment id.
		_, err := f.svc.DeleteComment(ctx, owner, uuid.New(), "")
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)

		_, err = f.svc.DeleteComment(ctx, owner, content.ID, "not-a-uuid")
		assert.ErrorIs(t, err, simplefeed.ErrValidation)

		_, err = f.svc.DeleteComment(ctx, owner, content.ID, uuid.NewString())
		assert.ErrorIs(t, err, simplefeed.ErrCommentNotFound)
	})

	t.Run("PreservesOrder", func(t *testing.T) {
		f, content, first := setup(t)
		second, err := f.svc.AddComment(ctx, other, content.ID, "two")
		require.NoError(t, err)
		third, err := f.svc.AddComment(ctx, owner, content.ID, "three")
		require.NoError(t, err)

		updated, err := f.svc.DeleteComment(ctx, other, content.ID, second.Comments[1].ID.String())
		require.NoError(t, err)
		require.Len(t, updated.Comments, 2)
		assert.Equal(t, first, updated.Comments[0].ID)
		assert.Equal(t, third.Comments[2].ID, updated.Comments[1].ID)
	})

	t.Run("AuthorNameIsSnapshot", func(t *testing.T) {
		f, content, _ := setup(t)
		renamed := simplefeed.Actor{ID: author.ID, Name: "renamed"}
		updated, err := f.svc.AddComment(ctx, renamed, content.ID, "again")
		require.NoError(t, err)

		assert.Equal(t, "author", updated.Comments[0].AuthorName)
		assert.Equal(t, "renamed", updated.Comments[1].AuthorName)
		// The live profile follows the rename.
		assert.Equal(t, "renamed", updated.Comments[0].Author.Name)
	})
}

func TestEditCaption(t *testing.T) {
	ctx := context.Background()
	owner := actor("owner")

	f := newFixture(t)
	content := f.post(t, owner, simplefeed.KindPost, "old")

	_, err := f.svc.EditCaption(ctx, simplefeed.EditCaptionRequest{Actor: actor("x"), ContentID: content.ID, Caption: "hijack"})
	assert.ErrorIs(t, err, simplefeed.ErrForbidden)

	updated, err := f.svc.EditCaption(ctx, simplefeed.EditCaptionRequest{Actor: owner, ContentID: content.ID, Caption: "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Caption)
	assert.Equal(t, int64(2), updated.Version)

	stale := int64(1)
	_, err = f.svc.EditCaption(ctx, simplefeed.EditCaptionRequest{Actor: owner, ContentID: content.ID, Caption: "stale", ExpectedVersion: &stale})
	assert.ErrorIs(t, err, simplefeed.ErrConflict)

	current := updated.Version
	updated, err = f.svc.EditCaption(ctx, simplefeed.EditCaptionRequest{Actor: owner, ContentID: content.ID, Caption: "", ExpectedVersion: &current})
	require.NoError(t, err)
	assert.Equal(t, "", updated.Caption)

	_, err = f.svc.EditCaption(ctx, simplefeed.EditCaptionRequest{Actor: owner, ContentID: uuid.New(), Caption: "x"})
	assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)

	assert.Contains(t, f.sink.updates, "edit_caption")
}

func TestDeleteContent(t *testing.T) {
	ctx := context.Background()
	owner := actor("owner")

	t.Run("OwnerOnly", func(t *testing.T) {
		f := newFixture(t)
		content := f.post(t, owner, simplefeed.KindPost, "")

		err := f.svc.DeleteContent(ctx, actor("x"), content.ID)
		assert.ErrorIs(t, err, simplefeed.ErrForbidden)

		_, err = f.svc.GetContent(ctx, content.ID)
		assert.NoError(t, err)
	})

	t.Run("RemovesRecordAndMedia", func(t *testing.T) {
		f := newFixture(t)
		content := f.post(t, owner, simplefeed.KindPost, "")

		require.NoError(t, f.svc.DeleteContent(ctx, owner, content.ID))
		_, err := f.svc.GetContent(ctx, content.ID)
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
		assert.Equal(t, 0, f.media.Len())

		err = f.svc.DeleteContent(ctx, owner, content.ID)
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)
	})

	t.Run("BestEffortMediaDelete", func(t *testing.T) {
		f := newFixture(t)
		content := f.post(t, owner, simplefeed.KindPost, "")
		f.media.deleteErr = errTransient

		require.NoError(t, f.svc.DeleteContent(ctx, owner, content.ID))
		_, err := f.svc.GetContent(ctx, content.ID)
		assert.ErrorIs(t, err, simplefeed.ErrContentNotFound)

		_, deletes := f.media.counts()
		assert.Equal(t, 3, deletes)
		require.Len(t, f.sink.orphaned, 1)
		assert.Equal(t, content.Media, f.sink.orphaned[0])
	})

	t.Run("StrictMediaDelete", func(t *testing.T) {
		f := newFixture(t, simplefeed.WithStrictMediaDelete(true))
		content := f.post(t, owner, simplefeed.KindPost, "")
		f.media.deleteErr = errTransient

		err := f.svc.DeleteContent(ctx, owner, content.ID)
		assert.ErrorIs(t, err, simplefeed.ErrMediaDeleteFailed)

		_, err = f.svc.GetContent(ctx, content.ID)
		assert.NoError(t, err)
		assert.Empty(t, f.sink.orphaned)
	})
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, simplefeed.WithTracer(tp.Tracer("test")))
	ctx := context.Background()

	content := f.post(t, actor("alice"), simplefeed.KindPost, "")
	_, err := f.svc.ToggleLike(ctx, actor("bob"), uuid.New())
	require.Error(t, err)
	_, err = f.svc.ToggleLike(ctx, actor("bob"), content.ID)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "simplefeed.CreateContent", spans[0].Name())
	assert.Equal(t, "simplefeed.ToggleLike", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, codes.Unset, spans[2].Status().Code)
}
