package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tendant/simple-feed/pkg/simplefeed"
)

// Gateway is an in-memory implementation of simplefeed.MediaGateway
type Gateway struct {
	mu      sync.RWMutex
	objects map[string]object
}

type object struct {
	data     []byte
	mimeType string
	isVideo  bool
}

// New creates a new in-memory media gateway
func New() *Gateway {
	return &Gateway{objects: make(map[string]object)}
}

var _ simplefeed.MediaGateway = (*Gateway)(nil)

// Upload stores the media under opts.Key
func (g *Gateway) Upload(ctx context.Context, reader io.Reader, opts simplefeed.UploadOptions) (simplefeed.MediaRef, error) {
	if opts.Key == "" {
		return simplefeed.MediaRef{}, fmt.Errorf("%w: object key is required", simplefeed.ErrMediaRejected)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return simplefeed.MediaRef{}, fmt.Errorf("failed to read media: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.objects[opts.Key] = object{data: data, mimeType: opts.MimeType, isVideo: opts.IsVideo}
	return simplefeed.MediaRef{ExternalID: opts.Key, URL: "memory://" + opts.Key}, nil
}

// Delete removes the media. Deleting a missing key succeeds.
func (g *Gateway) Delete(ctx context.Context, externalID string) error {
	if externalID == "" {
		return errors.New("external id is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.objects, externalID)
	return nil
}

// Get returns a copy of the stored media
func (g *Gateway) Get(externalID string) ([]byte, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	obj, ok := g.objects[externalID]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// IsVideo reports whether the media was uploaded as video
func (g *Gateway) IsVideo(externalID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.objects[externalID].isVideo
}

// Len returns the number of stored objects
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.objects)
}
