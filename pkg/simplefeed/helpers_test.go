package simplefeed_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	memmedia "github.com/tendant/simple-feed/pkg/simplefeed/media/memory"
	"github.com/tendant/simple-feed/pkg/simplefeed/repo/memory"
)

var errTransient = errors.New("connection reset")

// flakyGateway wraps the memory gateway with injectable failures.
type flakyGateway struct {
	*memmedia.Gateway

	mu             sync.Mutex
	uploadFailures int   // remaining uploads that fail before success
	uploadErr      error // error returned by failing uploads
	deleteErr      error // when set, every delete fails
	uploads        int
	deletes        int
}

func newFlakyGateway() *flakyGateway {
	return &flakyGateway{Gateway: memmedia.New(), uploadErr: errTransient}
}

func (g *flakyGateway) Upload(ctx context.Context, r io.Reader, opts simplefeed.UploadOptions) (simplefeed.MediaRef, error) {
	g.mu.Lock()
	g.uploads++
	fail := g.uploadFailures != 0
	if g.uploadFailures > 0 {
		g.uploadFailures--
	}
	g.mu.Unlock()

	if fail {
		return simplefeed.MediaRef{}, g.uploadErr
	}
	return g.Gateway.Upload(ctx, r, opts)
}

func (g *flakyGateway) Delete(ctx context.Context, externalID string) error {
	g.mu.Lock()
	g.deletes++
	err := g.deleteErr
	g.mu.Unlock()

	if err != nil {
		return err
	}
	return g.Gateway.Delete(ctx, externalID)
}

func (g *flakyGateway) counts() (uploads, deletes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uploads, g.deletes
}

// recordingSink captures events.
type recordingSink struct {
	simplefeed.NoopEventSink

	mu       sync.Mutex
	orphaned []simplefeed.MediaRef
	updates  []string
}

func (s *recordingSink) ContentUpdated(ctx context.Context, content *simplefeed.ContentRecord, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, op)
	return nil
}

func (s *recordingSink) MediaOrphaned(ctx context.Context, contentID uuid.UUID, media simplefeed.MediaRef, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orphaned = append(s.orphaned, media)
	return nil
}

// stepClock advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

var fastRetry = simplefeed.RetryPolicy{
	MaxTries:        3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

type fixture struct {
	svc   simplefeed.Service
	repo  *memory.Repository
	media *flakyGateway
	sink  *recordingSink
}

func newFixture(t *testing.T, opts ...simplefeed.Option) *fixture {
	t.Helper()

	f := &fixture{repo: memory.New(), media: newFlakyGateway(), sink: &recordingSink{}}
	base := []simplefeed.Option{
		simplefeed.WithRepository(f.repo),
		simplefeed.WithMediaGateway(f.media),
		simplefeed.WithEventSink(f.sink),
		simplefeed.WithMediaRetry(fastRetry),
		simplefeed.WithClock(stepClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), time.Second)),
	}
	svc, err := simplefeed.New(append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func actor(name string) simplefeed.Actor {
	return simplefeed.Actor{ID: uuid.New(), Name: name}
}

func (f *fixture) post(t *testing.T, owner simplefeed.Actor, kind simplefeed.Kind, caption string) *simplefeed.ContentRecord {
	t.Helper()
	content, err := f.svc.CreateContent(context.Background(), simplefeed.CreateContentRequest{
		Actor:    owner,
		Kind:     kind,
		Caption:  caption,
		Media:    []byte("media bytes"),
		MimeType: "image/jpeg",
		FileName: "photo.jpg",
	})
	require.NoError(t, err)
	return content
}
