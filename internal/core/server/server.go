// Package server wires the HTTP routes of the map server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gevika/map-metagenome/internal/core/config"
	"github.com/gevika/map-metagenome/internal/core/health"
	middleware "github.com/gevika/map-metagenome/internal/core/middleware"
	mylog "github.com/gevika/map-metagenome/internal/logger"
	"github.com/gevika/map-metagenome/internal/site"
)

// Site is what the routes need from the served dataset.
type Site interface {
	health.ReadinessReporter
	Artifact(ctx context.Context, name string) (site.Artifact, error)
	Reload(ctx context.Context, trigger string) error
}

type Deps struct {
	Site    Site
	Logger  *slog.Logger
	Metrics http.Handler
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Site))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Get("/", serveArtifact(d, site.ArtifactPage))
	r.Get("/"+site.ArtifactPage, serveArtifact(d, site.ArtifactPage))
	r.Get("/"+site.ArtifactGeoJSON, serveArtifact(d, site.ArtifactGeoJSON))
	r.Get("/"+site.ArtifactImage, serveArtifact(d, site.ArtifactImage))
	r.Post("/reload", reload(d))
	return r
}

func serveArtifact(d Deps, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := d.Site.Artifact(r.Context(), name)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, site.ErrNotLoaded) {
				status = http.StatusServiceUnavailable
			}
			d.Logger.ErrorContext(r.Context(), "artifact failed", "artifact", name, "err", err)
			http.Error(w, http.StatusText(status), status)
			return
		}

		result := "miss"
		if a.Hit {
			result = "hit"
		}
		ctx := mylog.WithCacheResult(r.Context(), result)
		d.Logger.DebugContext(ctx, "artifact served", "artifact", name, "bytes", len(a.Body))

		etag := a.ETag()
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Cache", result)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", a.ContentType())
		_, _ = w.Write(a.Body)
	}
}

func reload(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := d.Site.Reload(r.Context(), "http"); err != nil {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed", "error": err.Error()})
			return
		}
		_, detail := d.Site.Readiness()
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "reloaded", "detail": detail})
	}
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
