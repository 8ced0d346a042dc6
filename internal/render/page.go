// Package render produces the map artifacts: the interactive page, GeoJSON and a static image.
package render

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"github.com/gevika/map-metagenome/internal/core/model"
	"github.com/gevika/map-metagenome/internal/filter"
	h3mapper "github.com/gevika/map-metagenome/internal/mapper/h3"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var pageTmpl = template.Must(template.New("map.html.tmpl").ParseFS(templatesFS, "templates/map.html.tmpl"))

const (
	DefaultTileURL     = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultAttribution = "&copy; OpenStreetMap contributors"
	DefaultTitle       = "Metagenomic samples"
)

type PageOptions struct {
	Title       string
	TileURL     string
	Attribution string
	Center      model.Position
	Zoom        int
	// SliderStep is the range control granularity; 0 means continuous.
	SliderStep float64
}

func (o PageOptions) withDefaults() PageOptions {
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.TileURL == "" {
		o.TileURL = DefaultTileURL
	}
	if o.Attribution == "" {
		o.Attribution = DefaultAttribution
	}
	if o.Center == (model.Position{}) {
		o.Center = model.Position{Lat: 47, Lon: 2}
	}
	if o.Zoom <= 0 {
		o.Zoom = 3
	}
	if o.SliderStep < 0 {
		o.SliderStep = 0
	}
	return o
}

// marker as embedded in the page; category comes from the Go classifier so
// the page never re-interprets raw depth strings
type pageMarker struct {
	ID       string   `json:"id"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Category string   `json:"category"`
	Depth    *float64 `json:"depth"`
	DepthRaw string   `json:"depthRaw"`
	Project  string   `json:"project"`
	Focus    string   `json:"focus"`
	Location string   `json:"location,omitempty"`
	Cell     string   `json:"cell,omitempty"`
	CellSize int      `json:"cellSize,omitempty"`
}

type pagePayload struct {
	Markers []pageMarker `json:"markers"`
	Extent  model.Extent `json:"extent"`
	State   filter.State `json:"state"`
	Counts  model.Counts `json:"counts"`
}

type pageData struct {
	Title       string
	TileURL     string
	Attribution string
	Center      model.Position
	Zoom        int
	Step        float64
	Total       int
	Payload     template.JS
}

// Page writes the interactive map. state seeds the initial control positions.
func Page(w io.Writer, ds model.Dataset, state filter.State, opts PageOptions) error {
	opts = opts.withDefaults()

	_, cellCounts := h3mapper.CountByCell(ds.Records)
	markers := make([]pageMarker, 0, len(ds.Records))
	for _, r := range ds.Records {
		pm := pageMarker{
			ID:       r.ID,
			Lat:      r.Position.Lat,
			Lon:      r.Position.Lon,
			Category: r.Depth.Category.String(),
			DepthRaw: r.DepthRaw,
			Project:  r.Project,
			Focus:    r.Focus,
			Location: r.Location,
			Cell:     r.Cell,
		}
		if r.Depth.Category == model.Numeric {
			v := r.Depth.Value
			pm.Depth = &v
		}
		if r.Cell != "" {
			pm.CellSize = cellCounts[r.Cell].Total()
		}
		markers = append(markers, pm)
	}

	payload, err := json.Marshal(pagePayload{
		Markers: markers,
		Extent:  ds.Extent,
		State:   state,
		Counts:  ds.Counts,
	})
	if err != nil {
		return fmt.Errorf("encode page payload: %w", err)
	}

	// json.Marshal escapes <, > and & so the payload cannot close the script element
	js := template.JS(payload)

	data := pageData{
		Title:       opts.Title,
		TileURL:     opts.TileURL,
		Attribution: opts.Attribution,
		Center:      opts.Center,
		Zoom:        opts.Zoom,
		Step:        opts.SliderStep,
		Total:       len(markers),
		Payload:     js,
	}
	if err := pageTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("execute page template: %w", err)
	}
	return nil
}
