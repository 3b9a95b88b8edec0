package simplefeed

import "github.com/google/uuid"

// Request DTOs

// CreateContentRequest contains parameters for publishing a post or reel
type CreateContentRequest struct {
	Actor    Actor
	Kind     Kind
	Caption  string
	Media    []byte
	MimeType string
	FileName string
}

// FeedRequest contains parameters for reading one feed page
type FeedRequest struct {
	Kind   Kind
	Cursor *Cursor
	Limit  int
}

// EditCaptionRequest contains parameters for replacing a caption
type EditCaptionRequest struct {
	Actor     Actor
	ContentID uuid.UUID
	Caption   string

	// ExpectedVersion, when set, makes the edit conditional on the record
	// still being at that version.
	ExpectedVersion *int64
}
