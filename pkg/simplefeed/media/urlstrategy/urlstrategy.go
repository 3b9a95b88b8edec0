// Package urlstrategy decides which URL a media object is reachable at.
//
// The URL built at upload time is persisted with the content record, so the
// strategies a gateway stores with (CDN and content-based) return URLs that
// stay valid for the life of the object. StorageDelegatedStrategy returns
// short-lived backend URLs and is only used behind RedirectHandler, which
// resolves a stable content-based URL on every request.
package urlstrategy

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// URLStrategy maps an object key to a URL.
type URLStrategy interface {
	MediaURL(ctx context.Context, objectKey string) (string, error)
}

// StrategyType names a URL strategy.
type StrategyType string

const (
	// StrategyTypeCDN points directly at a public bucket or CDN.
	StrategyTypeCDN StrategyType = "cdn"

	// StrategyTypeContentBased routes requests through the application.
	StrategyTypeContentBased StrategyType = "content-based"

	// StrategyTypeStorageDelegated asks the storage backend, typically for a
	// presigned URL.
	StrategyTypeStorageDelegated StrategyType = "storage-delegated"
)

// CDNStrategy joins a public base URL with the object key.
type CDNStrategy struct {
	BaseURL string
}

// NewCDNStrategy creates a CDN strategy for baseURL
func NewCDNStrategy(baseURL string) *CDNStrategy {
	return &CDNStrategy{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *CDNStrategy) MediaURL(ctx context.Context, objectKey string) (string, error) {
	if s.BaseURL == "" {
		return "", fmt.Errorf("CDN base URL not configured")
	}
	return s.BaseURL + "/" + cleanKey(objectKey), nil
}

// ContentBasedStrategy returns application URLs under Prefix. The server
// mounts a handler at Prefix that serves or redirects to the object.
type ContentBasedStrategy struct {
	Prefix string
}

// NewContentBasedStrategy creates a content-based strategy. An empty prefix
// means /media.
func NewContentBasedStrategy(prefix string) *ContentBasedStrategy {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = "/media"
	}
	return &ContentBasedStrategy{Prefix: prefix}
}

func (s *ContentBasedStrategy) MediaURL(ctx context.Context, objectKey string) (string, error) {
	return s.Prefix + "/" + cleanKey(objectKey), nil
}

// Presigner issues temporary read URLs for stored objects
type Presigner interface {
	PresignGet(ctx context.Context, objectKey string) (string, error)
}

// StorageDelegatedStrategy delegates URL generation to the storage backend.
type StorageDelegatedStrategy struct {
	Presigner Presigner
}

// NewStorageDelegatedStrategy creates a strategy backed by presigner
func NewStorageDelegatedStrategy(presigner Presigner) *StorageDelegatedStrategy {
	return &StorageDelegatedStrategy{Presigner: presigner}
}

func (s *StorageDelegatedStrategy) MediaURL(ctx context.Context, objectKey string) (string, error) {
	if s.Presigner == nil {
		return "", fmt.Errorf("storage backend not configured")
	}
	return s.Presigner.PresignGet(ctx, cleanKey(objectKey))
}

// Config holds configuration for creating the strategy media URLs are
// stored with.
type Config struct {
	Type       StrategyType
	CDNBaseURL string // For CDN strategy
	Prefix     string // For content-based strategy
}

// New creates the strategy described by config. Storage-delegated URLs
// expire, so they cannot be stored and are rejected here.
func New(config Config) (URLStrategy, error) {
	switch config.Type {
	case StrategyTypeCDN:
		if config.CDNBaseURL == "" {
			return nil, fmt.Errorf("CDN base URL is required for CDN strategy")
		}
		return NewCDNStrategy(config.CDNBaseURL), nil
	case StrategyTypeContentBased, "":
		return NewContentBasedStrategy(config.Prefix), nil
	case StrategyTypeStorageDelegated:
		return nil, fmt.Errorf("storage-delegated URLs expire and cannot be stored")
	default:
		return nil, fmt.Errorf("unknown URL strategy type: %s", config.Type)
	}
}

// NewRecommended picks CDN when a public base URL is known and falls back to
// content-based URLs under prefix.
func NewRecommended(cdnBaseURL, prefix string) URLStrategy {
	if cdnBaseURL != "" {
		return NewCDNStrategy(cdnBaseURL)
	}
	return NewContentBasedStrategy(prefix)
}

// RedirectHandler answers requests under prefix with a temporary redirect to
// the URL target resolves for the remaining path.
func RedirectHandler(prefix string, target URLStrategy) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	return http.StripPrefix(prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		key := cleanKey(r.URL.Path)
		if key == "" {
			http.NotFound(w, r)
			return
		}
		url, err := target.MediaURL(r.Context(), key)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, url, http.StatusFound)
	}))
}

// cleanKey normalizes a key to a relative slash path without dot segments.
func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}
