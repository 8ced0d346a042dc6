// Package model defines core domain types shared across the service.
package model

import "fmt"

type Position struct {
	Lat float64
	Lon float64
}

// String representation used in logs and popups
func (p Position) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

func (p Position) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Category is the semantic class of a raw depth field.
type Category int

const (
	Missing Category = iota
	Numeric
	Unknown
)

func (c Category) String() string {
	switch c {
	case Numeric:
		return "numeric"
	case Unknown:
		return "unknown"
	default:
		return "missing"
	}
}

// Depth is a classified depth field. Value is meaningful only when Category is Numeric.
type Depth struct {
	Category Category
	Value    float64
}

func NumericDepth(v float64) Depth { return Depth{Category: Numeric, Value: v} }
func MissingDepth() Depth          { return Depth{Category: Missing} }
func UnknownDepth() Depth          { return Depth{Category: Unknown} }

func (d Depth) String() string {
	if d.Category == Numeric {
		return fmt.Sprintf("%g", d.Value)
	}
	return d.Category.String()
}

// MarkerRecord is one dataset row projected to what the map needs. Immutable after load.
type MarkerRecord struct {
	ID       string
	Position Position
	Depth    Depth
	DepthRaw string
	Project  string
	Focus    string
	Location string
	Cell     string
}

// Extent is the inclusive min/max over numeric depths.
type Extent struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Counts struct {
	Numeric int `json:"numeric"`
	Missing int `json:"missing"`
	Unknown int `json:"unknown"`
}

func (c Counts) Total() int { return c.Numeric + c.Missing + c.Unknown }

func (c *Counts) Add(cat Category) {
	switch cat {
	case Numeric:
		c.Numeric++
	case Unknown:
		c.Unknown++
	default:
		c.Missing++
	}
}

type Dataset struct {
	Name        string
	Records     []MarkerRecord
	Extent      Extent
	Counts      Counts
	Skipped     int
	Fingerprint uint64
}

type Cells []string
