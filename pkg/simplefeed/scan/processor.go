package scan

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-feed/pkg/simplefeed"
)

// ContentProcessor processes individual records found by a scan.
// Return an error to mark the record as failed; the scan continues.
type ContentProcessor interface {
	Process(ctx context.Context, content *simplefeed.ContentRecord) error
}

// funcProcessor adapts a function to the ContentProcessor interface.
type funcProcessor struct {
	fn func(context.Context, *simplefeed.ContentRecord) error
}

func (p *funcProcessor) Process(ctx context.Context, content *simplefeed.ContentRecord) error {
	return p.fn(ctx, content)
}

// Stats aggregates engagement totals over a scan.
type Stats struct {
	mu       sync.Mutex
	Records  int64
	Likes    int64
	Comments int64
	ByOwner  map[uuid.UUID]int64
}

// NewStats returns an empty Stats processor
func NewStats() *Stats {
	return &Stats{ByOwner: make(map[uuid.UUID]int64)}
}

func (s *Stats) Process(ctx context.Context, content *simplefeed.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Records++
	s.Likes += int64(len(content.Likes))
	s.Comments += int64(len(content.Comments))
	s.ByOwner[content.OwnerID]++
	return nil
}
