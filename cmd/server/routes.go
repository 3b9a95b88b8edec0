package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	"github.com/tendant/simple-feed/pkg/simplefeed/api"
	"github.com/tendant/simple-feed/pkg/simplefeed/config"
)

// routes builds the server's handler: health checks, the media route when
// media URLs point at the application, and the feed API behind JWT
// verification.
func routes(ctx context.Context, svc simplefeed.Service, cfg *config.ServerConfig, logger *slog.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if cfg.Environment == "development" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "If-Match"},
			ExposedHeaders: []string{"ETag"},
			MaxAge:         300,
		}))
	}

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	prefix, media, ok, err := cfg.MediaHandler(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		r.Mount(prefix, media)
	}

	tokenAuth := api.NewTokenAuth(cfg.JWTSecret)
	feed := api.NewFeedHandler(svc, api.WithLogger(logger))

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Mount(cfg.APIMount, feed.Routes())
	})

	return r, nil
}
