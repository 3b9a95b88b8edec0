package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-feed/pkg/simplefeed"
)

// DefaultMaxUploadBytes bounds multipart bodies accepted by POST /new
const DefaultMaxUploadBytes = 64 << 20

// FeedHandler exposes the feed and engagement operations over HTTP
type FeedHandler struct {
	service        simplefeed.Service
	identity       IdentityFunc
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption configures a FeedHandler
type HandlerOption func(*FeedHandler)

// WithIdentity sets how the acting user is resolved (default: JWTIdentity)
func WithIdentity(identity IdentityFunc) HandlerOption {
	return func(h *FeedHandler) {
		h.identity = identity
	}
}

// WithLogger sets the handler's logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *FeedHandler) {
		h.logger = logger
	}
}

// WithMaxUploadBytes bounds the size of uploaded media
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *FeedHandler) {
		h.maxUploadBytes = n
	}
}

func NewFeedHandler(service simplefeed.Service, opts ...HandlerOption) *FeedHandler {
	h := &FeedHandler{
		service:        service,
		identity:       JWTIdentity,
		logger:         slog.Default(),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for feed endpoints. Every route requires an
// identity.
func (h *FeedHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireIdentity(h.identity))

	r.With(RequestSizeLimit(h.maxUploadBytes)).Post("/new", h.CreateContent)
	r.Get("/all", h.GetFeed)
	r.Get("/{id}", h.GetContent)
	r.Put("/{id}", h.EditCaption)
	r.Delete("/{id}", h.DeleteContent)
	r.Post("/like/{id}", h.ToggleLike)
	r.Post("/comment/{id}", h.AddComment)
	r.Delete("/comment/{id}", h.DeleteComment)
	return r
}

// CreateContentResponse is returned by POST /new
type CreateContentResponse struct {
	Message string                    `json:"message"`
	Post    *simplefeed.ContentRecord `json:"post"`
}

// PageResponse is one feed page. NextCursor is opaque and should be passed
// back verbatim; NextCursorTime is the creation time of the last item.
type PageResponse struct {
	Items          []*simplefeed.ContentRecord `json:"items"`
	NextCursor     *string                     `json:"nextCursor"`
	NextCursorTime *time.Time                  `json:"nextCursorTime"`
	HasMore        bool                        `json:"hasMore"`
}

// EditCaptionRequest is the body of PUT /{id}
type EditCaptionRequest struct {
	Caption *string `json:"caption"`
}

// AddCommentRequest is the body of POST /comment/{id}
type AddCommentRequest struct {
	Comment string `json:"comment"`
}

func actor(r *http.Request) simplefeed.Actor {
	a, _ := ActorFromContext(r.Context())
	return a
}

func (h *FeedHandler) contentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// An id that cannot exist is reported the same way as a missing one.
		h.writeError(w, r, simplefeed.ErrContentNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func setETag(w http.ResponseWriter, content *simplefeed.ContentRecord) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(content.Version, 10)))
}

// CreateContent accepts a multipart form with a "file" part and a "caption"
// field. The kind is taken from ?type= (post or reel).
func (h *FeedHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	kind, err := simplefeed.ParseKind(r.URL.Query().Get("type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.badRequest(w, r, "file", "File too large")
			return
		}
		h.badRequest(w, r, "file", "Invalid upload")
		return
	}

	req := simplefeed.CreateContentRequest{
		Actor:   actor(r),
		Kind:    kind,
		Caption: r.FormValue("caption"),
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		req.Media, err = io.ReadAll(file)
		if err != nil {
			h.badRequest(w, r, "file", "Invalid upload")
			return
		}
		req.FileName = header.Filename
		req.MimeType = header.Header.Get("Content-Type")
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// Left to the service to reject.
	default:
		h.badRequest(w, r, "file", "Invalid upload")
		return
	}

	content, err := h.service.CreateContent(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreateContentResponse{Message: "Post created", Post: content})
}

// GetFeed serves GET /all?type=&cursor=&limit=
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind, err := simplefeed.ParseKind(q.Get("type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cursor, err := simplefeed.ParseCursor(q.Get("cursor"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil {
			h.badRequest(w, r, "limit", "Invalid limit")
			return
		}
	}

	page, err := h.service.GetFeedPage(r.Context(), simplefeed.FeedRequest{
		Kind:   kind,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := PageResponse{Items: page.Items, HasMore: page.HasMore}
	if page.NextCursor != nil {
		encoded := page.NextCursor.Encode()
		at := page.NextCursor.CreatedAt
		resp.NextCursor = &encoded
		resp.NextCursorTime = &at
	}
	render.JSON(w, r, resp)
}

// GetContent serves a single record
func (h *FeedHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	content, err := h.service.GetContent(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	setETag(w, content)
	render.JSON(w, r, content)
}

// EditCaption replaces the caption. If-Match, when present, must carry the
// version the client last saw.
func (h *FeedHandler) EditCaption(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	var body EditCaptionRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		h.badRequest(w, r, "caption", "Invalid request body")
		return
	}
	if body.Caption == nil {
		h.badRequest(w, r, "caption", "Please give caption")
		return
	}

	req := simplefeed.EditCaptionRequest{
		Actor:     actor(r),
		ContentID: id,
		Caption:   *body.Caption,
	}
	if match := r.Header.Get("If-Match"); match != "" {
		version, err := parseVersion(match)
		if err != nil {
			h.badRequest(w, r, "If-Match", "Invalid If-Match header")
			return
		}
		req.ExpectedVersion = &version
	}

	content, err := h.service.EditCaption(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	setETag(w, content)
	render.JSON(w, r, content)
}

func parseVersion(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "W/")
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// DeleteContent removes a record owned by the caller
func (h *FeedHandler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteContent(r.Context(), actor(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "Post Deleted"})
}

// ToggleLike likes or unlikes the record for the caller
func (h *FeedHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	result, err := h.service.ToggleLike(r.Context(), actor(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// AddComment appends the caller's comment
func (h *FeedHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	var body AddCommentRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, r, "comment", "Invalid request body")
		return
	}

	content, err := h.service.AddComment(r.Context(), actor(r), id, body.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, content)
}

// DeleteComment removes the comment named by ?commentId=
func (h *FeedHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	content, err := h.service.DeleteComment(r.Context(), actor(r), id, r.URL.Query().Get("commentId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, content)
}
