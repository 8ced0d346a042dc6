package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gevika/map-metagenome/internal/core/config"
	"github.com/gevika/map-metagenome/internal/invalidation/kafkaconsumer"
	"github.com/gevika/map-metagenome/internal/invalidation/kafkapublisher"
	"github.com/gevika/map-metagenome/internal/logger"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

// optional float flag; NaN until set
type floatFlag float64

func (f *floatFlag) String() string {
	if math.IsNaN(float64(*f)) {
		return ""
	}
	return strconv.FormatFloat(float64(*f), 'g', -1, 64)
}

func (f *floatFlag) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*f = floatFlag(v)
	return nil
}

func run() int {
	cfg := config.FromEnv()

	minDepth, maxDepth := floatFlag(math.NaN()), floatFlag(math.NaN())
	dataPath := flag.String("data", cfg.DataPath, "dataset TSV path or http(s) URL")
	decimal := flag.String("decimal", cfg.DataDecimal, `decimal separator of the dataset ("." or ",")`)
	outDir := flag.String("out", cfg.OutDir, "directory for index.html and samples.geojson")
	readmePath := flag.String("readme", cfg.ReadmePath, "README to update; empty skips the update")
	imagePath := flag.String("image", cfg.ImagePath, "static map PNG output path")
	basemap := flag.String("basemap", "", "optional GeoJSON of land/country polygons drawn on the PNG")
	flag.Var(&minDepth, "min", "preset lower depth bound")
	flag.Var(&maxDepth, "max", "preset upper depth bound")
	hideMissing := flag.Bool("hide-missing", false, "start with missing-depth samples hidden")
	hideUnknown := flag.Bool("hide-unknown", false, "start with unknown-depth samples hidden")
	notify := flag.Bool("notify", cfg.Invalidation.Enabled, "publish a dataset_updated event to Kafka when done")
	flag.Parse()

	cfg.DataPath, cfg.DataDecimal, cfg.OutDir = *dataPath, *decimal, *outDir
	cfg.ReadmePath, cfg.ImagePath = *readmePath, *imagePath

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "mapgen",
		Version:   Version,
	}, os.Stderr)
	appLog := logger.NewSlog(&zl)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", "err", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := generate(ctx, cfg, preset{
		Min:         float64(minDepth),
		Max:         float64(maxDepth),
		HideMissing: *hideMissing,
		HideUnknown: *hideUnknown,
		Basemap:     *basemap,
	}, appLog)
	if err != nil {
		appLog.Error("map generation failed", "err", err)
		return 1
	}

	appLog.Info("map generated",
		"markers", sum.Markers,
		"visible", sum.Visible,
		"skipped", sum.Skipped,
		"page", sum.PagePath,
		"geojson", sum.GeoJSONPath,
		"image", sum.ImagePath,
		"readme_updated", sum.ReadmeUpdated)

	if *notify {
		pub, err := kafkapublisher.New(kafkaconsumer.SplitCSV(cfg.Invalidation.Brokers), cfg.Invalidation.Topic)
		if err != nil {
			appLog.Error("kafka publisher setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		if err := announce(ctx, pub, cfg.DatasetName, appLog); err != nil {
			appLog.Error("dataset update announcement failed", "err", err)
			return 1
		}
	}
	return 0
}
