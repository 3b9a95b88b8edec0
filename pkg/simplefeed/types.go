package simplefeed

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind partitions the feed. It is fixed when a record is created.
type Kind string

// Kind constants.
const (
	KindPost Kind = "post"
	KindReel Kind = "reel"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindPost, KindReel:
		return true
	}
	return false
}

// ParseKind normalizes s into a Kind. An empty string means KindPost.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindPost, nil
	}
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", &ValidationError{Field: "type", Message: fmt.Sprintf("unknown content type %q", s)}
	}
	return k, nil
}

// MediaRef is the opaque reference returned by a MediaGateway upload.
type MediaRef struct {
	ExternalID string `json:"id"`
	URL        string `json:"url"`
}

// Profile is the public projection of a user. It never carries credentials.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// Actor is the authenticated identity a request runs as.
type Actor struct {
	ID   uuid.UUID
	Name string
}

// Comment is a single comment on a content record.
//
// AuthorName is captured when the comment is written and is not re-synced
// if the author later renames.
type Comment struct {
	ID         uuid.UUID `json:"id"`
	AuthorID   uuid.UUID `json:"author_id"`
	AuthorName string    `json:"name"`
	Body       string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`

	// Populated by the service, never persisted.
	Author *Profile `json:"user,omitempty"`
}

// ContentRecord is a post or reel with its embedded engagement data.
type ContentRecord struct {
	ID        uuid.UUID   `json:"id"`
	OwnerID   uuid.UUID   `json:"owner_id"`
	Kind      Kind        `json:"type"`
	Caption   string      `json:"caption"`
	Media     MediaRef    `json:"post"`
	Likes     []uuid.UUID `json:"likes"`
	Comments  []Comment   `json:"comments"`
	Version   int64       `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	// Populated by the service, never persisted.
	Owner *Profile `json:"owner,omitempty"`
}

// LikedBy reports whether userID is in the record's likes.
func (c *ContentRecord) LikedBy(userID uuid.UUID) bool {
	for _, id := range c.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// FindComment returns the comment with the given id, or nil.
func (c *ContentRecord) FindComment(commentID uuid.UUID) *Comment {
	for i := range c.Comments {
		if c.Comments[i].ID == commentID {
			return &c.Comments[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the record.
func (c *ContentRecord) Clone() *ContentRecord {
	out := *c
	out.Likes = append([]uuid.UUID(nil), c.Likes...)
	out.Comments = append([]Comment(nil), c.Comments...)
	for i := range out.Comments {
		if author := out.Comments[i].Author; author != nil {
			cp := *author
			out.Comments[i].Author = &cp
		}
	}
	if c.Owner != nil {
		owner := *c.Owner
		out.Owner = &owner
	}
	return &out
}

// CursorOf returns the cursor positioned at c.
func (c *ContentRecord) CursorOf() Cursor {
	return Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
}

// Page is one page of a feed.
type Page struct {
	Items      []*ContentRecord `json:"items"`
	NextCursor *Cursor          `json:"-"`
	HasMore    bool             `json:"hasMore"`
}

// LikeResult is the outcome of a like toggle.
type LikeResult struct {
	Liked   bool           `json:"liked"`
	Message string         `json:"message"`
	Content *ContentRecord `json:"post"`
}

// Messages returned by ToggleLike.
const (
	MessageLiked   = "Post Liked"
	MessageUnliked = "Post Unliked"
)
