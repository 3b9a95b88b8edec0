package simplefeed

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Repository defines content record persistence. Engagement mutations are
// atomic primitives: implementations must apply each one against the stored
// record in a single step, never as a read followed by a full-record write.
type Repository interface {
	// Content operations
	CreateContent(ctx context.Context, content *ContentRecord) error
	GetContent(ctx context.Context, id uuid.UUID) (*ContentRecord, error)
	DeleteContent(ctx context.Context, id uuid.UUID) error

	// ListFeed returns up to q.Limit records of q.Kind admitted by q.Before,
	// ordered by CreatedAt then ID, both descending.
	ListFeed(ctx context.Context, q FeedQuery) ([]*ContentRecord, error)

	// ToggleLike flips userID's membership in the record's likes and reports
	// whether the user likes the record afterwards.
	ToggleLike(ctx context.Context, contentID, userID uuid.UUID, at time.Time) (*ContentRecord, bool, error)

	// AppendComment adds comment at the end of the record's comments.
	AppendComment(ctx context.Context, contentID uuid.UUID, comment Comment) (*ContentRecord, error)

	// RemoveComment removes the comment with the given id, keeping the order
	// of the others. It returns ErrCommentNotFound if no such comment exists.
	RemoveComment(ctx context.Context, contentID, commentID uuid.UUID, at time.Time) (*ContentRecord, error)

	// UpdateCaption replaces the caption. When expectedVersion is non-nil the
	// update only applies if the stored version matches, else ErrConflict.
	UpdateCaption(ctx context.Context, contentID uuid.UUID, caption string, expectedVersion *int64, at time.Time) (*ContentRecord, error)

	// Profile operations
	UpsertProfile(ctx context.Context, profile *Profile) error
	GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Profile, error)
}

// FeedQuery selects a window of one feed partition.
type FeedQuery struct {
	Kind   Kind
	Before *Cursor
	Limit  int
}

// MediaGateway stores and deletes binary media in an external object store.
type MediaGateway interface {
	// Upload stores the media read from reader under opts.Key.
	Upload(ctx context.Context, reader io.Reader, opts UploadOptions) (MediaRef, error)

	// Delete removes previously uploaded media by its external id.
	Delete(ctx context.Context, externalID string) error
}

// UploadOptions contains parameters for uploading media
type UploadOptions struct {
	Key      string
	IsVideo  bool
	MimeType string
}

// EventSink defines the interface for event handling
type EventSink interface {
	// ContentCreated is fired when a record is created
	ContentCreated(ctx context.Context, content *ContentRecord) error

	// ContentUpdated is fired after a like, comment or caption mutation
	ContentUpdated(ctx context.Context, content *ContentRecord, op string) error

	// ContentDeleted is fired when a record is deleted
	ContentDeleted(ctx context.Context, contentID uuid.UUID) error

	// MediaOrphaned is fired when media could not be deleted but its record
	// was removed anyway
	MediaOrphaned(ctx context.Context, contentID uuid.UUID, media MediaRef, cause error) error
}
