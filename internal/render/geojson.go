package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gevika/map-metagenome/internal/core/model"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string            `json:"type"`
	ID         string            `json:"id,omitempty"`
	Geometry   pointGeometry     `json:"geometry"`
	Properties featureProperties `json:"properties"`
}

type pointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // [lon, lat]
}

type featureProperties struct {
	DepthCategory string   `json:"depth_category"`
	Depth         *float64 `json:"depth"`
	DepthRaw      string   `json:"depth_raw"`
	Project       string   `json:"archive_project,omitempty"`
	Focus         string   `json:"study_primary_focus,omitempty"`
	Location      string   `json:"geo_loc_name,omitempty"`
	H3Cell        string   `json:"h3_cell,omitempty"`
}

// GeoJSON writes every record as a Point feature. Depth is null unless numeric.
func GeoJSON(w io.Writer, ds model.Dataset) error {
	fc := featureCollection{
		Type:     "FeatureCollection",
		Features: make([]feature, 0, len(ds.Records)),
	}
	for _, r := range ds.Records {
		props := featureProperties{
			DepthCategory: r.Depth.Category.String(),
			DepthRaw:      r.DepthRaw,
			Project:       r.Project,
			Focus:         r.Focus,
			Location:      r.Location,
			H3Cell:        r.Cell,
		}
		if r.Depth.Category == model.Numeric {
			v := r.Depth.Value
			props.Depth = &v
		}
		fc.Features = append(fc.Features, feature{
			Type: "Feature",
			ID:   r.ID,
			Geometry: pointGeometry{
				Type:        "Point",
				Coordinates: [2]float64{r.Position.Lon, r.Position.Lat},
			},
			Properties: props,
		})
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(fc); err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	return nil
}
