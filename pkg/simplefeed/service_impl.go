package simplefeed

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-feed/pkg/simplefeed/mediakey"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tendant/simple-feed/pkg/simplefeed"

// service implements the Service interface
type service struct {
	repository Repository
	media      MediaGateway
	keys       mediakey.Generator
	eventSink  EventSink
	logger     *slog.Logger
	tracer     trace.Tracer
	clock      func() time.Time

	retry             RetryPolicy
	strictMediaDelete bool
	defaultPageSize   int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithMediaGateway sets the media gateway used for uploads and deletes
func WithMediaGateway(gateway MediaGateway) Option {
	return func(s *service) {
		s.media = gateway
	}
}

// WithKeyGenerator sets how media object keys are derived
func WithKeyGenerator(gen mediakey.Generator) Option {
	return func(s *service) {
		s.keys = gen
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithTracer overrides the OpenTelemetry tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(s *service) {
		s.tracer = tracer
	}
}

// WithClock overrides the time source used for CreatedAt and UpdatedAt
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		s.clock = clock
	}
}

// WithMediaRetry sets the retry policy for media gateway calls
func WithMediaRetry(policy RetryPolicy) Option {
	return func(s *service) {
		s.retry = policy
	}
}

// WithStrictMediaDelete makes DeleteContent keep the record when its media
// cannot be deleted. By default the record is removed and the media is
// reported through EventSink.MediaOrphaned.
func WithStrictMediaDelete(strict bool) Option {
	return func(s *service) {
		s.strictMediaDelete = strict
	}
}

// WithDefaultPageSize sets the page size used when a request gives none
func WithDefaultPageSize(n int) Option {
	return func(s *service) {
		s.defaultPageSize = n
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		keys:            mediakey.NewShardedGenerator(),
		eventSink:       NewNoopEventSink(),
		clock:           time.Now,
		retry:           DefaultRetryPolicy(),
		defaultPageSize: DefaultPageSize,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, &ValidationError{Field: "repository", Message: "repository is required"}
	}
	if s.media == nil {
		return nil, &ValidationError{Field: "media", Message: "media gateway is required"}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.defaultPageSize <= 0 || s.defaultPageSize > MaxPageSize {
		s.defaultPageSize = DefaultPageSize
	}

	return s, nil
}

// now returns the current time at millisecond precision so every repository
// round-trips CreatedAt, and therefore cursors, exactly.
func (s *service) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

func (s *service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "simplefeed."+op, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err *error) {
	if err != nil && *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

func requireActor(actor Actor) error {
	if actor.ID == uuid.Nil {
		return &ValidationError{Field: "actor", Message: "authenticated user is required"}
	}
	return nil
}

// rememberActor refreshes the actor's public profile. Failures only cost
// enrichment, so they are logged and swallowed.
func (s *service) rememberActor(ctx context.Context, actor Actor) {
	if actor.Name == "" {
		return
	}
	if err := s.repository.UpsertProfile(ctx, &Profile{ID: actor.ID, Name: actor.Name}); err != nil {
		s.logger.Warn("Failed to upsert profile", "actor_id", actor.ID, "err", err)
	}
}

// Content operations

func (s *service) CreateContent(ctx context.Context, req CreateContentRequest) (content *ContentRecord, err error) {
	ctx, span := s.startSpan(ctx, "CreateContent", attribute.String("kind", string(req.Kind)))
	defer finishSpan(span, &err)

	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}
	kind := req.Kind
	if kind == "" {
		kind = KindPost
	}
	if !kind.IsValid() {
		return nil, &ValidationError{Field: "type", Message: "unknown content type " + string(kind)}
	}
	if len(req.Media) == 0 {
		return nil, &ValidationError{Field: "file", Message: "Please upload a file"}
	}

	id := uuid.New()
	key := s.keys.GenerateKey(id, &mediakey.KeyMetadata{
		Kind:     string(kind),
		FileName: req.FileName,
		OwnerID:  req.Actor.ID.String(),
	})

	ref, err := s.uploadMedia(ctx, req.Media, UploadOptions{
		Key:      key,
		IsVideo:  kind == KindReel,
		MimeType: req.MimeType,
	})
	if err != nil {
		s.logger.Error("Media upload failed, content not created", "actor_id", req.Actor.ID, "key", key, "err", err)
		return nil, err
	}

	now := s.now()
	content = &ContentRecord{
		ID:        id,
		OwnerID:   req.Actor.ID,
		Kind:      kind,
		Caption:   req.Caption,
		Media:     ref,
		Likes:     []uuid.UUID{},
		Comments:  []Comment{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repository.CreateContent(ctx, content); err != nil {
		if derr := s.deleteMedia(ctx, ref.ExternalID); derr != nil {
			s.logger.Warn("Failed to remove media of uncreated content", "key", ref.ExternalID, "err", derr)
		}
		return nil, &ContentError{ContentID: id, Op: "create", Err: err}
	}

	s.rememberActor(ctx, req.Actor)

	if err := s.eventSink.ContentCreated(ctx, content); err != nil {
		s.logger.Warn("Event sink failed", "event", "content_created", "content_id", id, "err", err)
	}

	if err := s.enrich(ctx, content); err != nil {
		return nil, err
	}
	return content, nil
}

func (s *service) GetContent(ctx context.Context, id uuid.UUID) (content *ContentRecord, err error) {
	ctx, span := s.startSpan(ctx, "GetContent", attribute.String("content_id", id.String()))
	defer finishSpan(span, &err)

	content, err = s.repository.GetContent(ctx, id)
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "get", Err: err}
	}
	if err := s.enrich(ctx, content); err != nil {
		return nil, err
	}
	return content, nil
}

func (s *service) DeleteContent(ctx context.Context, actor Actor, id uuid.UUID) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteContent", attribute.String("content_id", id.String()))
	defer finishSpan(span, &err)

	if err := requireActor(actor); err != nil {
		return err
	}
	content, err := s.repository.GetContent(ctx, id)
	if err != nil {
		return &ContentError{ContentID: id, Op: "delete", Err: err}
	}
	if !IsOwner(actor.ID, content) {
		return &ForbiddenError{Message: "Unauthorized"}
	}

	if err := s.deleteMedia(ctx, content.Media.ExternalID); err != nil {
		if s.strictMediaDelete {
			return err
		}
		s.logger.Warn("Media delete failed, removing content anyway",
			"content_id", id, "key", content.Media.ExternalID, "err", err)
		if serr := s.eventSink.MediaOrphaned(ctx, id, content.Media, err); serr != nil {
			s.logger.Warn("Event sink failed", "event", "media_orphaned", "content_id", id, "err", serr)
		}
	}

	if err := s.repository.DeleteContent(ctx, id); err != nil {
		return &ContentError{ContentID: id, Op: "delete", Err: err}
	}

	if err := s.eventSink.ContentDeleted(ctx, id); err != nil {
		s.logger.Warn("Event sink failed", "event", "content_deleted", "content_id", id, "err", err)
	}
	return nil
}

func (s *service) EditCaption(ctx context.Context, req EditCaptionRequest) (content *ContentRecord, err error) {
	ctx, span := s.startSpan(ctx, "EditCaption", attribute.String("content_id", req.ContentID.String()))
	defer finishSpan(span, &err)

	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}
	current, err := s.repository.GetContent(ctx, req.ContentID)
	if err != nil {
		return nil, &ContentError{ContentID: req.ContentID, Op: "edit_caption", Err: err}
	}
	if !IsOwner(req.Actor.ID, current) {
		return nil, &ForbiddenError{Message: "You are not owner of this post"}
	}

	content, err = s.repository.UpdateCaption(ctx, req.ContentID, req.Caption, req.ExpectedVersion, s.now())
	if err != nil {
		return nil, &ContentError{ContentID: req.ContentID, Op: "edit_caption", Err: err}
	}
	return s.afterMutation(ctx, content, "edit_caption")
}

// Engagement operations

func (s *service) ToggleLike(ctx context.Context, actor Actor, id uuid.UUID) (result *LikeResult, err error) {
	ctx, span := s.startSpan(ctx, "ToggleLike", attribute.String("content_id", id.String()))
	defer finishSpan(span, &err)

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	content, liked, err := s.repository.ToggleLike(ctx, id, actor.ID, s.now())
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "toggle_like", Err: err}
	}
	span.SetAttributes(attribute.Bool("liked", liked))

	result = &LikeResult{Liked: liked, Message: MessageUnliked}
	if liked {
		result.Message = MessageLiked
	}
	result.Content, err = s.afterMutation(ctx, content, "toggle_like")
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) AddComment(ctx context.Context, actor Actor, id uuid.UUID, body string) (content *ContentRecord, err error) {
	ctx, span := s.startSpan(ctx, "AddComment", attribute.String("content_id", id.String()))
	defer finishSpan(span, &err)

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, &ValidationError{Field: "comment", Message: "Please give comment"}
	}

	comment := Comment{
		ID:         uuid.New(),
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Body:       body,
		CreatedAt:  s.now(),
	}
	content, err = s.repository.AppendComment(ctx, id, comment)
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "add_comment", Err: err}
	}
	s.rememberActor(ctx, actor)
	return s.afterMutation(ctx, content, "add_comment")
}

func (s *service) DeleteComment(ctx context.Context, actor Actor, id uuid.UUID, commentID string) (content *ContentRecord, err error) {
	ctx, span := s.startSpan(ctx, "DeleteComment", attribute.String("content_id", id.String()))
	defer finishSpan(span, &err)

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	current, err := s.repository.GetContent(ctx, id)
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "delete_comment", Err: err}
	}

	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return nil, &ValidationError{Field: "commentId", Message: "Please give comment id"}
	}
	cid, err := uuid.Parse(commentID)
	if err != nil {
		return nil, &ValidationError{Field: "commentId", Message: "Invalid comment id"}
	}

	comment := current.FindComment(cid)
	if comment == nil {
		return nil, &ContentError{ContentID: id, Op: "delete_comment", Err: ErrCommentNotFound}
	}
	// Owner and author are immutable, so the check stays valid until removal.
	if !CanDeleteComment(actor.ID, current, comment) {
		return nil, &ForbiddenError{Message: "You are not allowed to delete this comment"}
	}

	content, err = s.repository.RemoveComment(ctx, id, cid, s.now())
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "delete_comment", Err: err}
	}
	return s.afterMutation(ctx, content, "delete_comment")
}

func (s *service) afterMutation(ctx context.Context, content *ContentRecord, op string) (*ContentRecord, error) {
	if err := s.eventSink.ContentUpdated(ctx, content, op); err != nil {
		s.logger.Warn("Event sink failed", "event", op, "content_id", content.ID, "err", err)
	}
	if err := s.enrich(ctx, content); err != nil {
		return nil, err
	}
	return content, nil
}
