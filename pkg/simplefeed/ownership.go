package simplefeed

import "github.com/google/uuid"

// IsOwner reports whether actorID created the record.
func IsOwner(actorID uuid.UUID, content *ContentRecord) bool {
	return content != nil && actorID == content.OwnerID
}

// CanDeleteComment reports whether actorID may delete comment from content:
// the record owner and the comment author both may.
func CanDeleteComment(actorID uuid.UUID, content *ContentRecord, comment *Comment) bool {
	if IsOwner(actorID, content) {
		return true
	}
	return comment != nil && actorID == comment.AuthorID
}
