package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-feed/pkg/simplefeed"
)

// MessageResponse is the body of every error and of message-only replies
type MessageResponse struct {
	Message string `json:"message"`
}

// statusFor maps a service error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var validation *simplefeed.ValidationError
	var forbidden *simplefeed.ForbiddenError

	switch {
	case errors.Is(err, simplefeed.ErrCommentNotFound):
		return http.StatusNotFound, "Comment not found"
	case errors.Is(err, simplefeed.ErrContentNotFound):
		return http.StatusNotFound, "No Post with this id"
	case errors.As(err, &forbidden):
		return http.StatusForbidden, forbidden.Message
	case errors.Is(err, simplefeed.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.Is(err, simplefeed.ErrInvalidCursor):
		return http.StatusBadRequest, "Invalid cursor"
	case errors.Is(err, simplefeed.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, simplefeed.ErrConflict):
		return http.StatusConflict, "Post was modified, reload and try again"
	case errors.Is(err, simplefeed.ErrUploadFailed):
		return http.StatusBadGateway, "Failed to upload media"
	case errors.Is(err, simplefeed.ErrMediaDeleteFailed):
		return http.StatusBadGateway, "Failed to delete media"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// writeError renders err as {"message": ...}. Server-side failures are logged.
func (h *FeedHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		h.logger.DebugContext(r.Context(), "Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, MessageResponse{Message: message})
}

func (h *FeedHandler) badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	h.writeError(w, r, &simplefeed.ValidationError{Field: field, Message: message})
}
