package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gevika/map-metagenome/internal/core/config"
	"github.com/gevika/map-metagenome/internal/core/httpclient"
	"github.com/gevika/map-metagenome/internal/dataset"
	"github.com/gevika/map-metagenome/internal/filter"
	"github.com/gevika/map-metagenome/internal/invalidation"
	h3mapper "github.com/gevika/map-metagenome/internal/mapper/h3"
	"github.com/gevika/map-metagenome/internal/readme"
	"github.com/gevika/map-metagenome/internal/render"
)

// preset is the filter state requested on the command line; NaN bounds are unset.
type preset struct {
	Min, Max    float64
	HideMissing bool
	HideUnknown bool
	Basemap     string
}

type summary struct {
	Markers       int
	Visible       int
	Skipped       int
	PagePath      string
	GeoJSONPath   string
	ImagePath     string
	ReadmeUpdated bool
}

func generate(ctx context.Context, cfg config.Config, p preset, log *slog.Logger) (summary, error) {
	ds, err := dataset.Load(ctx, cfg.DataPath, dataset.Options{
		Name:       cfg.DatasetName,
		Decimal:    cfg.DataDecimal,
		H3Res:      cfg.H3Res,
		Mapper:     h3mapper.New(),
		Logger:     log,
		HTTPClient: httpclient.NewOutbound(cfg.DataTimeout),
	})
	if err != nil {
		return summary{}, fmt.Errorf("load dataset: %w", err)
	}

	eng := filter.New(ds.Records, filter.WithLogger(log))
	if !math.IsNaN(p.Min) || !math.IsNaN(p.Max) {
		eng.SetRange(p.Min, p.Max)
	}
	if p.HideMissing {
		eng.ToggleMissing()
	}
	if p.HideUnknown {
		eng.ToggleUnknown()
	}

	imgOpts := render.ImageOptions{Width: cfg.ImageWidth, Title: cfg.Title}
	if p.Basemap != "" {
		b, err := os.ReadFile(p.Basemap)
		if err != nil {
			return summary{}, fmt.Errorf("read basemap: %w", err)
		}
		imgOpts.Basemap = b
	}

	sum := summary{
		Markers:     len(ds.Records),
		Visible:     eng.VisibleCount(),
		Skipped:     ds.Skipped,
		PagePath:    filepath.Join(cfg.OutDir, "index.html"),
		GeoJSONPath: filepath.Join(cfg.OutDir, "samples.geojson"),
		ImagePath:   cfg.ImagePath,
	}
	state, visible := eng.State(), eng.Visibility()
	pageOpts := render.PageOptions{Title: cfg.Title, TileURL: cfg.TileURL}

	var g errgroup.Group
	g.Go(func() error {
		var buf bytes.Buffer
		if err := render.Page(&buf, ds, state, pageOpts); err != nil {
			return fmt.Errorf("render page: %w", err)
		}
		return writeFile(sum.PagePath, buf.Bytes())
	})
	g.Go(func() error {
		var buf bytes.Buffer
		if err := render.GeoJSON(&buf, ds); err != nil {
			return fmt.Errorf("render geojson: %w", err)
		}
		return writeFile(sum.GeoJSONPath, buf.Bytes())
	})
	g.Go(func() error {
		var buf bytes.Buffer
		if err := render.StaticMap(&buf, ds, visible, imgOpts); err != nil {
			return fmt.Errorf("render image: %w", err)
		}
		return writeFile(sum.ImagePath, buf.Bytes())
	})
	if err := g.Wait(); err != nil {
		return summary{}, err
	}

	if cfg.ReadmePath != "" {
		link := filepath.ToSlash(cfg.ImagePath)
		if rel, err := filepath.Rel(filepath.Dir(cfg.ReadmePath), cfg.ImagePath); err == nil {
			link = filepath.ToSlash(rel)
		}
		changed, err := readme.SpliceFile(cfg.ReadmePath, "map", link)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn("readme not found; skipping image link", "path", cfg.ReadmePath)
		case err != nil:
			return summary{}, fmt.Errorf("update readme: %w", err)
		}
		sum.ReadmeUpdated = changed
	}
	return sum, nil
}

// writeFile replaces path atomically so readers never see a partial artifact.
func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

type publisher interface {
	Publish(ctx context.Context, ev invalidation.Event) (int32, int64, error)
}

// announce tells running servers that dataset changed so they reload it.
func announce(ctx context.Context, pub publisher, dataset string, log *slog.Logger) error {
	ev := invalidation.Event{
		Version: 1,
		Op:      invalidation.OpUpdated,
		Dataset: dataset,
		TS:      time.Now().UTC(),
		Source:  "mapgen",
	}
	part, off, err := pub.Publish(ctx, ev)
	if err != nil {
		return err
	}
	log.Info("dataset update announced", "dataset", dataset, "partition", part, "offset", off)
	return nil
}
