package render

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gevika/map-metagenome/internal/core/model"
)

const DefaultImageTitle = "World Map with Data Points"

type ImageOptions struct {
	Width  int
	Title  string
	Radius int
	// Basemap is an optional GeoJSON FeatureCollection (Polygon/MultiPolygon)
	// drawn as outlines, e.g. Natural Earth admin-0 countries.
	Basemap []byte
}

var (
	colOcean     = color.RGBA{R: 0xdd, G: 0xea, B: 0xf6, A: 0xff}
	colGrid      = color.RGBA{R: 0x9a, G: 0xa5, B: 0xb1, A: 0xff}
	colOutline   = color.RGBA{R: 0x30, G: 0x30, B: 0x30, A: 0xff}
	colMarker    = color.RGBA{R: 0xe0, G: 0x1b, B: 0x1b, A: 0xff}
	colMarkerRim = color.RGBA{R: 0x70, G: 0x70, B: 0x70, A: 0xff}
	colLabel     = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
)

// equirectangular projection onto a w x h canvas with a title band on top
type projection struct {
	w, h, top int
}

func (p projection) xy(lat, lon float64) (int, int) {
	x := (lon + 180) / 360 * float64(p.w-1)
	y := (90 - lat) / 180 * float64(p.h-1)
	return int(math.Round(x)), p.top + int(math.Round(y))
}

// StaticMap writes a PNG world plot with one dot per record whose visible
// entry is true. A nil visible slice draws every record.
func StaticMap(w io.Writer, ds model.Dataset, visible []bool, opts ImageOptions) error {
	if opts.Width <= 0 {
		opts.Width = 1500
	}
	if opts.Title == "" {
		opts.Title = DefaultImageTitle
	}
	if opts.Radius <= 0 {
		opts.Radius = max(2, opts.Width/300)
	}
	if visible != nil && len(visible) != len(ds.Records) {
		return fmt.Errorf("visibility has %d entries for %d records", len(visible), len(ds.Records))
	}

	const titleBand = 24
	proj := projection{w: opts.Width, h: opts.Width / 2, top: titleBand}
	img := image.NewRGBA(image.Rect(0, 0, proj.w, proj.h+titleBand))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, titleBand, proj.w, proj.h+titleBand), image.NewUniform(colOcean), image.Point{}, draw.Src)

	drawGraticule(img, proj)
	if len(opts.Basemap) > 0 {
		if err := drawBasemap(img, proj, opts.Basemap); err != nil {
			return err
		}
	}
	for i, r := range ds.Records {
		if visible != nil && !visible[i] {
			continue
		}
		x, y := proj.xy(r.Position.Lat, r.Position.Lon)
		fillCircle(img, x, y, opts.Radius+1, colMarkerRim)
		fillCircle(img, x, y, opts.Radius, colMarker)
	}
	drawLabel(img, 8, 17, opts.Title)

	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func drawGraticule(img *image.RGBA, p projection) {
	for lon := -180.0; lon <= 180; lon += 30 {
		x0, y0 := p.xy(90, lon)
		x1, y1 := p.xy(-90, lon)
		line(img, x0, y0, x1, y1, colGrid)
		if lon > -180 && lon < 180 {
			drawLabel(img, x0+2, y1-4, degLabel(lon, "E", "W"))
		}
	}
	for lat := -60.0; lat <= 60; lat += 30 {
		x0, y0 := p.xy(lat, -180)
		x1, y1 := p.xy(lat, 180)
		line(img, x0, y0, x1, y1, colGrid)
		drawLabel(img, x0+2, y0-2, degLabel(lat, "N", "S"))
	}
}

func degLabel(v float64, pos, neg string) string {
	switch {
	case v > 0:
		return fmt.Sprintf("%.0f°%s", v, pos)
	case v < 0:
		return fmt.Sprintf("%.0f°%s", -v, neg)
	default:
		return "0°"
	}
}

func drawLabel(img *image.RGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colLabel),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

type basemapGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func drawBasemap(img *image.RGBA, p projection, raw []byte) error {
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry *basemapGeometry `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse basemap: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return fmt.Errorf("basemap type is %q (want FeatureCollection)", fc.Type)
	}
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		var rings [][][]float64
		switch f.Geometry.Type {
		case "Polygon":
			if err := json.Unmarshal(f.Geometry.Coordinates, &rings); err != nil {
				return fmt.Errorf("basemap feature %d: %w", i, err)
			}
		case "MultiPolygon":
			var polys [][][][]float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &polys); err != nil {
				return fmt.Errorf("basemap feature %d: %w", i, err)
			}
			for _, pr := range polys {
				rings = append(rings, pr...)
			}
		default:
			continue
		}
		for _, ring := range rings {
			strokeRing(img, p, ring)
		}
	}
	return nil
}

func strokeRing(img *image.RGBA, p projection, ring [][]float64) {
	for j := 1; j < len(ring); j++ {
		a, b := ring[j-1], ring[j]
		if len(a) < 2 || len(b) < 2 {
			continue
		}
		// skip segments wrapping the antimeridian
		if math.Abs(a[0]-b[0]) > 180 {
			continue
		}
		x0, y0 := p.xy(a[1], a[0])
		x1, y1 := p.xy(b[1], b[0])
		line(img, x0, y0, x1, y1, colOutline)
	}
}

// Bresenham
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	r2 := r * r
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r2 {
				img.SetRGBA(cx+x, cy+y, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
