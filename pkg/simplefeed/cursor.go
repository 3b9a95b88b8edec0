package simplefeed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cursor marks where the next feed page resumes. Records strictly before the
// cursor in (CreatedAt desc, ID desc) order are on the following pages.
//
// A cursor with a nil ID is a bare timestamp: it admits only records created
// strictly earlier than CreatedAt.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Admits reports whether a record at (createdAt, id) sorts after the cursor.
func (c Cursor) Admits(createdAt time.Time, id uuid.UUID) bool {
	if createdAt.Before(c.CreatedAt) {
		return true
	}
	if c.ID == uuid.Nil || !createdAt.Equal(c.CreatedAt) {
		return false
	}
	return CompareIDs(id, c.ID) < 0
}

// Encode returns the opaque wire form of the cursor.
func (c Cursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano)
	if c.ID != uuid.Nil {
		raw += "|" + c.ID.String()
	}
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func (c Cursor) String() string {
	return c.Encode()
}

// ParseCursor decodes a cursor produced by Encode. A bare RFC 3339 timestamp is
// also accepted and yields a timestamp-only cursor.
func ParseCursor(s string) (*Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return &Cursor{CreatedAt: t.UTC()}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ts, idPart, hasID := strings.Cut(string(raw), "|")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	c := &Cursor{CreatedAt: t.UTC()}
	if hasID {
		id, err := uuid.Parse(idPart)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
		c.ID = id
	}
	return c, nil
}

// CompareIDs orders ids bytewise, the same way Postgres orders uuid columns
// and MongoDB orders their canonical string form.
func CompareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// FeedOrderLess reports whether a sorts before b in feed order.
func FeedOrderLess(a, b *ContentRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return CompareIDs(a.ID, b.ID) > 0
}
