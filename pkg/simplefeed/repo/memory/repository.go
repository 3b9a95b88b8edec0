package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-feed/pkg/simplefeed"
)

// Repository implements simplefeed.Repository using in-memory storage.
// Every mutation runs under one write lock, which makes each engagement
// primitive atomic with respect to every other.
type Repository struct {
	mu       sync.RWMutex
	contents map[uuid.UUID]*simplefeed.ContentRecord
	profiles map[uuid.UUID]*simplefeed.Profile
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		contents: make(map[uuid.UUID]*simplefeed.ContentRecord),
		profiles: make(map[uuid.UUID]*simplefeed.Profile),
	}
}

var _ simplefeed.Repository = (*Repository)(nil)

// stored returns a copy without the service-populated profile fields.
func stored(content *simplefeed.ContentRecord) *simplefeed.ContentRecord {
	c := content.Clone()
	c.Owner = nil
	for i := range c.Comments {
		c.Comments[i].Author = nil
	}
	if c.Likes == nil {
		c.Likes = []uuid.UUID{}
	}
	if c.Comments == nil {
		c.Comments = []simplefeed.Comment{}
	}
	return c
}

// Content operations

func (r *Repository) CreateContent(ctx context.Context, content *simplefeed.ContentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contents[content.ID]; exists {
		return fmt.Errorf("content %s already exists", content.ID)
	}
	r.contents[content.ID] = stored(content)
	return nil
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID) (*simplefeed.ContentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	content, exists := r.contents[id]
	if !exists {
		return nil, simplefeed.ErrContentNotFound
	}
	return content.Clone(), nil
}

func (r *Repository) DeleteContent(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contents[id]; !exists {
		return simplefeed.ErrContentNotFound
	}
	delete(r.contents, id)
	return nil
}

func (r *Repository) ListFeed(ctx context.Context, q simplefeed.FeedQuery) ([]*simplefeed.ContentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*simplefeed.ContentRecord
	for _, content := range r.contents {
		if content.Kind != q.Kind {
			continue
		}
		if q.Before != nil && !q.Before.Admits(content.CreatedAt, content.ID) {
			continue
		}
		matches = append(matches, content)
	}

	sort.Slice(matches, func(i, j int) bool {
		return simplefeed.FeedOrderLess(matches[i], matches[j])
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}

	result := make([]*simplefeed.ContentRecord, 0, len(matches))
	for _, content := range matches {
		result = append(result, content.Clone())
	}
	return result, nil
}

// Engagement operations

func (r *Repository) ToggleLike(ctx context.Context, contentID, userID uuid.UUID, at time.Time) (*simplefeed.ContentRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	content, exists := r.contents[contentID]
	if !exists {
		return nil, false, simplefeed.ErrContentNotFound
	}

	liked := true
	for i, id := range content.Likes {
		if id == userID {
			content.Likes = append(content.Likes[:i:i], content.Likes[i+1:]...)
			liked = false
			break
		}
	}
	if liked {
		content.Likes = append(content.Likes, userID)
	}
	content.Version++
	content.UpdatedAt = at

	return content.Clone(), liked, nil
}

func (r *Repository) AppendComment(ctx context.Context, contentID uuid.UUID, comment simplefeed.Comment) (*simplefeed.ContentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	content, exists := r.contents[contentID]
	if !exists {
		return nil, simplefeed.ErrContentNotFound
	}

	comment.Author = nil
	content.Comments = append(content.Comments, comment)
	content.Version++
	content.UpdatedAt = comment.CreatedAt

	return content.Clone(), nil
}

func (r *Repository) RemoveComment(ctx context.Context, contentID, commentID uuid.UUID, at time.Time) (*simplefeed.ContentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	content, exists := r.contents[contentID]
	if !exists {
		return nil, simplefeed.ErrContentNotFound
	}

	for i := range content.Comments {
		if content.Comments[i].ID == commentID {
			content.Comments = append(content.Comments[:i:i], content.Comments[i+1:]...)
			content.Version++
			content.UpdatedAt = at
			return content.Clone(), nil
		}
	}
	return nil, simplefeed.ErrCommentNotFound
}

func (r *Repository) UpdateCaption(ctx context.Context, contentID uuid.UUID, caption string, expectedVersion *int64, at time.Time) (*simplefeed.ContentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	content, exists := r.contents[contentID]
	if !exists {
		return nil, simplefeed.ErrContentNotFound
	}
	if expectedVersion != nil && *expectedVersion != content.Version {
		return nil, simplefeed.ErrConflict
	}

	content.Caption = caption
	content.Version++
	content.UpdatedAt = at

	return content.Clone(), nil
}

// Profile operations

func (r *Repository) UpsertProfile(ctx context.Context, profile *simplefeed.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := *profile
	if existing, ok := r.profiles[p.ID]; ok && p.AvatarURL == "" {
		p.AvatarURL = existing.AvatarURL
	}
	r.profiles[p.ID] = &p
	return nil
}

func (r *Repository) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*simplefeed.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[uuid.UUID]*simplefeed.Profile, len(ids))
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok {
			cp := *p
			result[id] = &cp
		}
	}
	return result, nil
}
