package simplefeed

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrContentNotFound indicates a content record was not found
	ErrContentNotFound = errors.New("content not found")

	// ErrCommentNotFound indicates a comment was not found on its record
	ErrCommentNotFound = errors.New("comment not found")

	// ErrForbidden indicates the actor may not perform the operation
	ErrForbidden = errors.New("forbidden")

	// ErrValidation indicates a missing or malformed input
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates the record changed since the caller read it
	ErrConflict = errors.New("content was modified concurrently")

	// ErrUploadFailed indicates the media gateway rejected an upload
	ErrUploadFailed = errors.New("media upload failed")

	// ErrMediaDeleteFailed indicates the media gateway failed to delete media
	ErrMediaDeleteFailed = errors.New("media delete failed")

	// ErrMediaRejected marks a media gateway failure that retrying cannot fix
	ErrMediaRejected = errors.New("media rejected")

	// ErrInvalidCursor indicates a feed cursor could not be decoded
	ErrInvalidCursor = errors.New("invalid cursor")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ForbiddenError describes an authorization failure.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// ContentError represents an error related to content operations
type ContentError struct {
	ContentID uuid.UUID
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for content %s: %v", e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// MediaError represents a failed media gateway call. It matches both the
// underlying cause and ErrUploadFailed or ErrMediaDeleteFailed.
type MediaError struct {
	Key string
	Op  string
	Err error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *MediaError) Unwrap() []error {
	switch e.Op {
	case "upload":
		return []error{ErrUploadFailed, e.Err}
	case "delete":
		return []error{ErrMediaDeleteFailed, e.Err}
	}
	return []error{e.Err}
}
