package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-feed/pkg/simplefeed"
	"github.com/tendant/simple-feed/pkg/simplefeed/media/urlstrategy"
)

// Gateway stores media on the local filesystem
type Gateway struct {
	baseDir string
	urls    *urlstrategy.ContentBasedStrategy
}

// Config options for the filesystem gateway
type Config struct {
	BaseDir   string // Base directory for storing files
	URLPrefix string // URL prefix media is served under (default: /media)
}

// New creates a new filesystem media gateway
func New(config Config) (*Gateway, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Gateway{
		baseDir: config.BaseDir,
		urls:    urlstrategy.NewContentBasedStrategy(config.URLPrefix),
	}, nil
}

var _ simplefeed.MediaGateway = (*Gateway)(nil)

// resolve maps a key to a path inside baseDir, refusing keys that escape it.
func (g *Gateway) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", fmt.Errorf("%w: invalid object key %q", simplefeed.ErrMediaRejected, key)
	}
	return filepath.Join(g.baseDir, filepath.FromSlash(clean)), nil
}

// Upload writes the media to a temporary file and renames it into place
func (g *Gateway) Upload(ctx context.Context, reader io.Reader, opts simplefeed.UploadOptions) (simplefeed.MediaRef, error) {
	filePath, err := g.resolve(opts.Key)
	if err != nil {
		return simplefeed.MediaRef{}, err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return simplefeed.MediaRef{}, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return simplefeed.MediaRef{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return simplefeed.MediaRef{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return simplefeed.MediaRef{}, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return simplefeed.MediaRef{}, fmt.Errorf("failed to store file: %w", err)
	}

	key := strings.TrimPrefix(path.Clean("/"+opts.Key), "/")
	url, err := g.urls.MediaURL(ctx, key)
	if err != nil {
		return simplefeed.MediaRef{}, err
	}
	return simplefeed.MediaRef{ExternalID: key, URL: url}, nil
}

// Delete removes the media file. A missing file is not an error.
func (g *Gateway) Delete(ctx context.Context, externalID string) error {
	filePath, err := g.resolve(externalID)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// URLPrefix returns the path media URLs start with
func (g *Gateway) URLPrefix() string {
	return g.urls.Prefix
}

// Handler serves stored media. Mount it under URLPrefix.
func (g *Gateway) Handler() http.Handler {
	return http.StripPrefix(g.urls.Prefix, http.FileServer(http.Dir(g.baseDir)))
}
