package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-feed/pkg/simplefeed"
)

// Pager reads feed pages. simplefeed.Service satisfies it.
type Pager interface {
	GetFeedPage(ctx context.Context, req simplefeed.FeedRequest) (*simplefeed.Page, error)
}

// Scanner walks a feed partition from newest to oldest.
type Scanner struct {
	pager  Pager
	logger *slog.Logger
}

// New creates a new Scanner instance.
func New(pager Pager, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{pager: pager, logger: logger}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// Kind selects the partition (default: post)
	Kind simplefeed.Kind

	// Processor defines the processing logic (required unless DryRun is true)
	Processor ContentProcessor

	// BatchSize is the page size used for each query (default and max: simplefeed.MaxPageSize)
	BatchSize int

	// DryRun if true, doesn't process records, just reports what would be processed
	DryRun bool

	// OnProgress is called after each page is processed (optional)
	OnProgress func(processed, found int64)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	TotalFound     int64
	TotalProcessed int64
	TotalFailed    int64
	FailedIDs      []string
	Pages          int
}

// Scan pages through the partition by chaining NextCursor until HasMore is
// false. A processor failure is recorded and scanning continues.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}
	if opts.BatchSize <= 0 || opts.BatchSize > simplefeed.MaxPageSize {
		opts.BatchSize = simplefeed.MaxPageSize
	}

	var cursor *simplefeed.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := s.pager.GetFeedPage(ctx, simplefeed.FeedRequest{
			Kind:   opts.Kind,
			Cursor: cursor,
			Limit:  opts.BatchSize,
		})
		if err != nil {
			return result, fmt.Errorf("failed to read feed page: %w", err)
		}
		result.Pages++
		result.TotalFound += int64(len(page.Items))

		for _, content := range page.Items {
			if opts.DryRun {
				s.logger.Info("[DRY-RUN] Would process", "content_id", content.ID, "kind", content.Kind, "owner_id", content.OwnerID)
				result.TotalProcessed++
				continue
			}

			if err := opts.Processor.Process(ctx, content); err != nil {
				result.TotalFailed++
				result.FailedIDs = append(result.FailedIDs, content.ID.String())
				s.logger.Error("Failed to process content", "content_id", content.ID, "err", err)
				continue
			}
			result.TotalProcessed++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}

		if !page.HasMore || page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	return result, nil
}

// ForEach processes each record of kind with fn.
func (s *Scanner) ForEach(ctx context.Context, kind simplefeed.Kind, fn func(context.Context, *simplefeed.ContentRecord) error) (*ScanResult, error) {
	return s.Scan(ctx, ScanOptions{
		Kind:      kind,
		Processor: &funcProcessor{fn: fn},
	})
}
