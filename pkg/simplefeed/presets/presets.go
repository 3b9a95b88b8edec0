package presets

import (
	"fmt"
	"os"
	"testing"

	"github.com/tendant/simple-feed/pkg/simplefeed"
	fsmedia "github.com/tendant/simple-feed/pkg/simplefeed/media/fs"
	memorymedia "github.com/tendant/simple-feed/pkg/simplefeed/media/memory"
	memoryrepo "github.com/tendant/simple-feed/pkg/simplefeed/repo/memory"
)

// Configuration Presets
//
// Presets wire a service for common situations without boilerplate. Any
// simplefeed.Option passed in is applied after the preset's own options, so
// callers can override the repository, media gateway, clock and so on.

// NewDevelopment creates a service configured for local development.
//
// Features:
//   - In-memory repository (instant startup, no setup required)
//   - Filesystem media at ./dev-data/ served under /media
//   - Lifecycle events logged through slog
//
// The returned cleanup function removes the media directory.
//
// Example:
//
//	svc, gw, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
//	r.Mount(gw.URLPrefix(), gw.Handler())
func NewDevelopment(opts ...DevelopmentOption) (simplefeed.Service, *fsmedia.Gateway, func(), error) {
	cfg := &devConfig{
		mediaDir: "./dev-data",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	gateway, err := fsmedia.New(fsmedia.Config{BaseDir: cfg.mediaDir})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create filesystem media: %w", err)
	}

	options := []simplefeed.Option{
		simplefeed.WithRepository(memoryrepo.New()),
		simplefeed.WithMediaGateway(gateway),
		simplefeed.WithEventSink(simplefeed.NewLoggingEventSink(nil)),
	}
	options = append(options, cfg.service...)

	svc, err := simplefeed.New(options...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.mediaDir)
	}
	return svc, gateway, cleanup, nil
}

// NewTesting creates a service backed by an in-memory repository and
// in-memory media. Each call is isolated, so tests may run in parallel.
func NewTesting(t testing.TB, opts ...simplefeed.Option) simplefeed.Service {
	t.Helper()

	options := []simplefeed.Option{
		simplefeed.WithRepository(memoryrepo.New()),
		simplefeed.WithMediaGateway(memorymedia.New()),
	}
	options = append(options, opts...)

	svc, err := simplefeed.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

// devConfig holds development preset configuration
type devConfig struct {
	mediaDir string
	service  []simplefeed.Option
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevMediaDir sets the directory uploaded media is written to
func WithDevMediaDir(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.mediaDir = dir
	}
}

// WithServiceOptions appends options passed to simplefeed.New
func WithServiceOptions(opts ...simplefeed.Option) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.service = append(cfg.service, opts...)
	}
}
