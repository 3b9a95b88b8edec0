package simplefeed

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-op implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-op event sink
func NewNoopEventSink() *NoopEventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ContentCreated(ctx context.Context, content *ContentRecord) error {
	return nil
}

func (n *NoopEventSink) ContentUpdated(ctx context.Context, content *ContentRecord, op string) error {
	return nil
}

func (n *NoopEventSink) ContentDeleted(ctx context.Context, contentID uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) MediaOrphaned(ctx context.Context, contentID uuid.UUID, media MediaRef, cause error) error {
	return nil
}

// LoggingEventSink writes every event to a structured logger
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs through logger
func NewLoggingEventSink(logger *slog.Logger) *LoggingEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) ContentCreated(ctx context.Context, content *ContentRecord) error {
	l.logger.InfoContext(ctx, "content created",
		"content_id", content.ID, "owner_id", content.OwnerID, "kind", content.Kind)
	return nil
}

func (l *LoggingEventSink) ContentUpdated(ctx context.Context, content *ContentRecord, op string) error {
	l.logger.InfoContext(ctx, "content updated",
		"content_id", content.ID, "op", op, "version", content.Version,
		"likes", len(content.Likes), "comments", len(content.Comments))
	return nil
}

func (l *LoggingEventSink) ContentDeleted(ctx context.Context, contentID uuid.UUID) error {
	l.logger.InfoContext(ctx, "content deleted", "content_id", contentID)
	return nil
}

func (l *LoggingEventSink) MediaOrphaned(ctx context.Context, contentID uuid.UUID, media MediaRef, cause error) error {
	l.logger.WarnContext(ctx, "media orphaned",
		"content_id", contentID, "media_id", media.ExternalID, "err", cause)
	return nil
}
