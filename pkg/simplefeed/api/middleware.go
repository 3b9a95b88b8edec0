package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-feed/pkg/simplefeed"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorFromContext returns the actor stored by RequireIdentity
func ActorFromContext(ctx context.Context) (simplefeed.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(simplefeed.Actor)
	return actor, ok
}

// RequireIdentity resolves the actor with identify and rejects the request
// with 401 when that fails.
func RequireIdentity(identify IdentityFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := identify(r)
			if err != nil {
				slog.Debug("Rejected unauthenticated request", "path", r.URL.Path, "err", err)
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, MessageResponse{Message: "Please Login"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

// RequestSizeLimit caps request bodies at maxBytes
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
