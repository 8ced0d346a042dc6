// Package dataset reads the tab-separated sample table into classified marker records.
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/gevika/map-metagenome/internal/core/model"
	"github.com/gevika/map-metagenome/internal/depth"
	"github.com/gevika/map-metagenome/internal/mapper"
)

const (
	ColLatitude  = "latitude"
	ColLongitude = "longitude"
	ColDepth     = "depth"
	ColProject   = "archive_project"
	ColFocus     = "study_primary_focus"
	ColLocation  = "geo_loc_name"
)

var ErrMissingColumn = errors.New("missing required column")

type Options struct {
	Name       string
	Decimal    string // decimal separator of the source, "." or ","
	H3Res      int
	Mapper     mapper.Interface
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Load reads the dataset from a local path or an http(s) URL.
func Load(ctx context.Context, src string, opts Options) (model.Dataset, error) {
	if opts.Name == "" {
		opts.Name = src
	}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return loadURL(ctx, src, opts)
	}
	f, err := os.Open(src)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f, opts)
}

func loadURL(ctx context.Context, url string, opts Options) (model.Dataset, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("fetch dataset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return model.Dataset{}, fmt.Errorf("fetch dataset: unexpected status %d", resp.StatusCode)
	}
	return Read(resp.Body, opts)
}

// Read parses a header-led TSV. Rows with unusable coordinates are skipped
// and counted; depth never causes a row to be rejected.
func Read(r io.Reader, opts Options) (model.Dataset, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	ds := model.Dataset{Name: opts.Name, Fingerprint: xxhash.Sum64(raw)}

	cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte("\ufeff"))))
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return model.Dataset{}, fmt.Errorf("%w: empty input", ErrMissingColumn)
	}
	if err != nil {
		return model.Dataset{}, fmt.Errorf("read header: %w", err)
	}
	idx := indexHeader(header)
	for _, col := range []string{ColLatitude, ColLongitude, ColDepth} {
		if _, ok := idx[col]; !ok {
			return model.Dataset{}, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.Dataset{}, fmt.Errorf("read row %d: %w", row, err)
		}
		field := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}

		latRaw, lonRaw := field(ColLatitude), field(ColLongitude)
		pos, ok := parsePosition(normalize(latRaw, opts.Decimal), normalize(lonRaw, opts.Decimal))
		if !ok {
			ds.Skipped++
			log.Warn("skipping row with invalid coordinates",
				"row", row, "latitude", latRaw, "longitude", lonRaw)
			continue
		}

		depthRaw := field(ColDepth)
		m := model.MarkerRecord{
			Position: pos,
			Depth:    depth.Classify(normalize(depthRaw, opts.Decimal)),
			DepthRaw: depthRaw,
			Project:  strings.TrimSpace(field(ColProject)),
			Focus:    strings.TrimSpace(field(ColFocus)),
			Location: strings.TrimSpace(field(ColLocation)),
		}
		m.ID = markerID(row, latRaw, lonRaw, depthRaw, m.Project)
		if opts.Mapper != nil {
			cell, err := opts.Mapper.CellFor(pos, opts.H3Res)
			if err != nil {
				log.Warn("h3 cell assignment failed", "row", row, "err", err)
			}
			m.Cell = cell
		}
		ds.Counts.Add(m.Depth.Category)
		ds.Records = append(ds.Records, m)
	}

	ds.Extent = depth.Extent(ds.Records)
	log.Info("dataset loaded",
		"name", ds.Name,
		"records", len(ds.Records),
		"skipped", ds.Skipped,
		"numeric", ds.Counts.Numeric,
		"missing", ds.Counts.Missing,
		"unknown", ds.Counts.Unknown,
		"min_depth", ds.Extent.Min,
		"max_depth", ds.Extent.Max,
		"fingerprint", fmt.Sprintf("%016x", ds.Fingerprint))
	return ds, nil
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

// decimal comma sources get "," rewritten to "." before any numeric parse
func normalize(s, decimal string) string {
	if decimal == "," {
		return strings.ReplaceAll(s, ",", ".")
	}
	return s
}

func parsePosition(lat, lon string) (model.Position, bool) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil || math.IsNaN(la) {
		return model.Position{}, false
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil || math.IsNaN(lo) {
		return model.Position{}, false
	}
	p := model.Position{Lat: la, Lon: lo}
	return p, p.Valid()
}

func markerID(row int, fields ...string) string {
	h := xxhash.New()
	_, _ = h.WriteString(strconv.Itoa(row))
	for _, f := range fields {
		_, _ = h.WriteString("\x1f")
		_, _ = h.WriteString(f)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
