package simplefeed

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the feed and engagement operations
type Service interface {
	// Content operations
	CreateContent(ctx context.Context, req CreateContentRequest) (*ContentRecord, error)
	GetContent(ctx context.Context, id uuid.UUID) (*ContentRecord, error)
	DeleteContent(ctx context.Context, actor Actor, id uuid.UUID) error
	EditCaption(ctx context.Context, req EditCaptionRequest) (*ContentRecord, error)

	// Feed
	GetFeedPage(ctx context.Context, req FeedRequest) (*Page, error)

	// Engagement
	ToggleLike(ctx context.Context, actor Actor, id uuid.UUID) (*LikeResult, error)
	AddComment(ctx context.Context, actor Actor, id uuid.UUID, body string) (*ContentRecord, error)
	DeleteComment(ctx context.Context, actor Actor, id uuid.UUID, commentID string) (*ContentRecord, error)
}
