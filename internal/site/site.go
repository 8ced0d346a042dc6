// Package site serves the rendered artifacts of the current dataset through the artifact cache.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gevika/map-metagenome/internal/cache"
	"github.com/gevika/map-metagenome/internal/cache/keys"
	"github.com/gevika/map-metagenome/internal/core/model"
	"github.com/gevika/map-metagenome/internal/core/observability"
	"github.com/gevika/map-metagenome/internal/filter"
	"github.com/gevika/map-metagenome/internal/render"
)

const (
	ArtifactPage    = "index.html"
	ArtifactGeoJSON = "samples.geojson"
	ArtifactImage   = "map.png"
)

var (
	ErrUnknownArtifact = errors.New("site: unknown artifact")
	ErrNotLoaded       = errors.New("site: dataset not loaded")
)

var contentTypes = map[string]string{
	ArtifactPage:    "text/html; charset=utf-8",
	ArtifactGeoJSON: "application/geo+json",
	ArtifactImage:   "image/png",
}

// Artifacts lists the names served by the site.
func Artifacts() []string { return []string{ArtifactPage, ArtifactGeoJSON, ArtifactImage} }

func ContentType(artifact string) string { return contentTypes[artifact] }

// Loader reads a fresh copy of the dataset.
type Loader func(ctx context.Context) (model.Dataset, error)

// prefixDeleter is implemented by backends that can drop every key of a dataset at once.
type prefixDeleter interface {
	DelPrefix(ctx context.Context, prefix string) (int, error)
}

type Options struct {
	Name      string
	Load      Loader
	Cache     cache.Interface
	TTL       func(artifact string) time.Duration
	OpTimeout time.Duration
	Page      render.PageOptions
	Image     render.ImageOptions
	Logger    *slog.Logger
}

type Artifact struct {
	Name        string
	Body        []byte
	Fingerprint uint64
	Hit         bool
}

func (a Artifact) ContentType() string { return ContentType(a.Name) }

// ETag is the strong validator of the artifact: dataset version plus artifact name.
func (a Artifact) ETag() string { return fmt.Sprintf("%q", fmt.Sprintf("%016x-%s", a.Fingerprint, a.Name)) }

type Site struct {
	opts   Options
	log    *slog.Logger
	flight singleflight.Group

	mu       sync.RWMutex
	ds       model.Dataset
	loaded   bool
	loadedAt time.Time
}

func New(opts Options) *Site {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.TTL == nil {
		opts.TTL = func(string) time.Duration { return 10 * time.Minute }
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 250 * time.Millisecond
	}
	return &Site{opts: opts, log: opts.Logger.With("dataset", opts.Name)}
}

func (s *Site) DatasetName() string { return s.opts.Name }

// Dataset returns the currently served dataset.
func (s *Site) Dataset() (model.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds, s.loaded
}

// Reload re-reads the dataset and swaps it in. On failure the previous dataset
// keeps being served. Cached artifacts of the replaced version are deleted.
func (s *Site) Reload(ctx context.Context, trigger string) error {
	start := time.Now()
	ds, err := s.opts.Load(ctx)
	observability.ObserveReload(trigger, err)
	if err != nil {
		s.log.Error("dataset reload failed", "trigger", trigger, "err", err)
		return fmt.Errorf("reload %s: %w", s.opts.Name, err)
	}
	if ds.Name == "" {
		ds.Name = s.opts.Name
	}

	s.mu.Lock()
	prev, hadPrev := s.ds, s.loaded
	s.ds, s.loaded, s.loadedAt = ds, true, time.Now()
	s.mu.Unlock()

	observability.SetDatasetCounts(ds.Counts, ds.Skipped)
	s.log.Info("dataset reloaded",
		"trigger", trigger,
		"markers", len(ds.Records),
		"numeric", ds.Counts.Numeric,
		"missing", ds.Counts.Missing,
		"unknown", ds.Counts.Unknown,
		"skipped", ds.Skipped,
		"fingerprint", fmt.Sprintf("%016x", ds.Fingerprint),
		"took", time.Since(start))

	if hadPrev && prev.Fingerprint != ds.Fingerprint {
		if _, err := s.drop(ctx, prev.Fingerprint); err != nil {
			s.log.Warn("dropping stale artifacts failed", "err", err)
		}
	}
	return nil
}

// Purge deletes every cached artifact of the dataset and reports how many keys were removed or targeted.
func (s *Site) Purge(ctx context.Context) (int, error) {
	if s.opts.Cache == nil {
		return 0, nil
	}
	if pd, ok := s.opts.Cache.(prefixDeleter); ok {
		n, err := pd.DelPrefix(ctx, keys.Prefix(s.opts.Name))
		if err != nil {
			return n, fmt.Errorf("purge %s: %w", s.opts.Name, err)
		}
		return n, nil
	}
	s.mu.RLock()
	fp, loaded := s.ds.Fingerprint, s.loaded
	s.mu.RUnlock()
	if !loaded {
		return 0, nil
	}
	return s.drop(ctx, fp)
}

func (s *Site) drop(ctx context.Context, fp uint64) (int, error) {
	if s.opts.Cache == nil {
		return 0, nil
	}
	ks := make([]string, 0, len(contentTypes))
	for _, a := range Artifacts() {
		ks = append(ks, keys.Key(s.opts.Name, fp, a))
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	if err := s.opts.Cache.Del(cctx, ks...); err != nil {
		return 0, fmt.Errorf("cache del: %w", err)
	}
	return len(ks), nil
}

// Artifact returns the rendered artifact for the current dataset, from the cache when possible.
func (s *Site) Artifact(ctx context.Context, name string) (Artifact, error) {
	if _, ok := contentTypes[name]; !ok {
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownArtifact, name)
	}
	ds, ok := s.Dataset()
	if !ok {
		return Artifact{}, ErrNotLoaded
	}
	key := keys.Key(s.opts.Name, ds.Fingerprint, name)

	if body, ok := s.cached(ctx, key); ok {
		observability.IncArtifactHit(name)
		return Artifact{Name: name, Body: body, Fingerprint: ds.Fingerprint, Hit: true}, nil
	}
	observability.IncArtifactMiss(name)

	v, err, _ := s.flight.Do(key, func() (any, error) {
		body, err := s.render(name, ds)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, name, body)
		return body, nil
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Artifact{Name: name, Body: v.([]byte), Fingerprint: ds.Fingerprint}, nil
}

func (s *Site) cached(ctx context.Context, key string) ([]byte, bool) {
	if s.opts.Cache == nil {
		return nil, false
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	body, err := s.opts.Cache.Get(cctx, key)
	switch {
	case err == nil:
		return body, true
	case errors.Is(err, cache.ErrNotFound):
	default:
		s.log.Warn("cache get failed; rendering", "key", key, "err", err)
	}
	return nil, false
}

// store is best effort; a failed write only costs a re-render later
func (s *Site) store(ctx context.Context, key, name string, body []byte) {
	if s.opts.Cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.OpTimeout)
	defer cancel()
	if err := s.opts.Cache.Set(cctx, key, body, s.opts.TTL(name)); err != nil {
		s.log.Warn("cache set failed", "key", key, "err", err)
	}
}

func (s *Site) render(name string, ds model.Dataset) ([]byte, error) {
	start := time.Now()
	var buf bytes.Buffer
	var err error
	switch name {
	case ArtifactPage:
		err = render.Page(&buf, ds, filter.Initial(ds.Extent), s.opts.Page)
	case ArtifactGeoJSON:
		err = render.GeoJSON(&buf, ds)
	case ArtifactImage:
		err = render.StaticMap(&buf, ds, nil, s.opts.Image)
	}
	if err != nil {
		return nil, err
	}
	observability.ObserveRender(name, time.Since(start))
	return buf.Bytes(), nil
}

// Readiness reports whether a dataset is loaded, with a short description of it.
func (s *Site) Readiness() (bool, map[string]any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return false, map[string]any{"dataset": s.opts.Name}
	}
	return true, map[string]any{
		"dataset":     s.opts.Name,
		"markers":     len(s.ds.Records),
		"fingerprint": fmt.Sprintf("%016x", s.ds.Fingerprint),
		"loaded_at":   s.loadedAt.UTC().Format(time.RFC3339),
	}
}
