package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gevika/map-metagenome/internal/cache"
	"github.com/gevika/map-metagenome/internal/cache/memstore"
	"github.com/gevika/map-metagenome/internal/cache/redisstore"
	"github.com/gevika/map-metagenome/internal/core/config"
	"github.com/gevika/map-metagenome/internal/core/httpclient"
	"github.com/gevika/map-metagenome/internal/core/model"
	"github.com/gevika/map-metagenome/internal/core/observability"
	"github.com/gevika/map-metagenome/internal/core/server"
	"github.com/gevika/map-metagenome/internal/dataset"
	"github.com/gevika/map-metagenome/internal/invalidation/kafkaconsumer"
	"github.com/gevika/map-metagenome/internal/logger"
	h3mapper "github.com/gevika/map-metagenome/internal/mapper/h3"
	"github.com/gevika/map-metagenome/internal/metrics"
	"github.com/gevika/map-metagenome/internal/render"
	"github.com/gevika/map-metagenome/internal/site"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	addr := flag.String("addr", cfg.Addr, "listen address")
	dataPath := flag.String("data", cfg.DataPath, "dataset TSV path or http(s) URL")
	basemap := flag.String("basemap", "", "optional GeoJSON of land/country polygons drawn on map.png")
	flag.Parse()
	cfg.Addr, cfg.DataPath = *addr, *dataPath

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "mapserver",
		Version:   Version,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", "err", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.ExposeBuildInfo(Version)
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		p := metrics.Init(metrics.Config{
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
			Collectors: observability.Collectors(),
		})
		metricsHandler = p.Handler()
	}

	store, closeStore, err := newCache(ctx, cfg)
	if err != nil {
		appLog.Error("cache setup failed", "backend", cfg.CacheBackend, "err", err)
		return 1
	}
	defer closeStore()

	imgOpts := render.ImageOptions{Width: cfg.ImageWidth, Title: cfg.Title}
	if *basemap != "" {
		b, err := os.ReadFile(*basemap)
		if err != nil {
			appLog.Error("read basemap", "err", err)
			return 1
		}
		imgOpts.Basemap = b
	}

	mapper := h3mapper.New()
	client := httpclient.NewOutbound(cfg.DataTimeout)
	s := site.New(site.Options{
		Name: cfg.DatasetName,
		Load: func(ctx context.Context) (model.Dataset, error) {
			return dataset.Load(ctx, cfg.DataPath, dataset.Options{
				Name:       cfg.DatasetName,
				Decimal:    cfg.DataDecimal,
				H3Res:      cfg.H3Res,
				Mapper:     mapper,
				Logger:     appLog,
				HTTPClient: client,
			})
		},
		Cache:     store,
		TTL:       cfg.TTLFor,
		OpTimeout: cfg.CacheOpTimeout,
		Page:      render.PageOptions{Title: cfg.Title, TileURL: cfg.TileURL},
		Image:     imgOpts,
		Logger:    appLog,
	})

	appLog.Info("starting mapserver",
		"addr", cfg.Addr,
		"version", Version,
		"data", cfg.DataPath,
		"cache", cfg.CacheBackend,
		"invalidation", cfg.Invalidation.Enabled)

	// serve even when the first load fails; /readyz reports it and /reload retries
	if err := s.Reload(ctx, "startup"); err != nil {
		appLog.Warn("initial dataset load failed", "err", err)
	}

	if cfg.Invalidation.Enabled {
		kc := kafkaconsumer.FromEnv()
		kc.Brokers = kafkaconsumer.SplitCSV(cfg.Invalidation.Brokers)
		kc.Topic = cfg.Invalidation.Topic
		kc.GroupID = cfg.Invalidation.GroupID
		kc.LogLevel = cfg.LogLevel
		consumer := kafkaconsumer.New(kc, appLog, s)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("kafka consumer stopped", "err", err)
			}
		}()
	}

	h := server.NewRouter(server.Deps{Site: s, Logger: appLog, Metrics: metricsHandler})
	if err := server.Run(ctx, cfg, appLog, h); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func newCache(ctx context.Context, cfg config.Config) (cache.Interface, func(), error) {
	switch cfg.CacheBackend {
	case "redis":
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rc, err := redisstore.New(pingCtx, cfg.RedisAddr,
			redisstore.WithReadTimeout(cfg.CacheOpTimeout),
			redisstore.WithWriteTimeout(cfg.CacheOpTimeout))
		if err != nil {
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return rc, func() { _ = rc.Close() }, nil
	case "none":
		return nil, func() {}, nil
	default:
		return memstore.New(cfg.CacheSize), func() {}, nil
	}
}

