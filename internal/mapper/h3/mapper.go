package h3mapper

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/gevika/map-metagenome/internal/core/model"
	"github.com/gevika/map-metagenome/internal/mapper"
)

type Mapper struct{}

var _ mapper.Interface = (*Mapper)(nil)

func New() *Mapper { return &Mapper{} }

// CellFor returns the H3 cell containing pos at res.
func (m *Mapper) CellFor(pos model.Position, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if !pos.Valid() {
		return "", fmt.Errorf("position %s out of range", pos)
	}
	// v4 wants degrees
	c, err := h3.LatLngToCell(h3.LatLng{Lat: pos.Lat, Lng: pos.Lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 latlng to cell: %w", err)
	}
	return c.String(), nil
}

func (m *Mapper) ToParent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	c, err := parseCell(cell)
	if err != nil {
		return "", err
	}
	curRes := c.Resolution()
	if parentRes > curRes {
		return "", fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, curRes)
	}
	if parentRes == curRes {
		return cell, nil
	}
	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}

// Center returns the centroid of cell.
func (m *Mapper) Center(cell string) (model.Position, error) {
	c, err := parseCell(cell)
	if err != nil {
		return model.Position{}, err
	}
	ll, err := c.LatLng()
	if err != nil {
		return model.Position{}, fmt.Errorf("h3 cell center: %w", err)
	}
	return model.Position{Lat: ll.Lat, Lon: ll.Lng}, nil
}

// CountByCell groups records by their assigned cell. Cells come back sorted.
func CountByCell(records []model.MarkerRecord) (model.Cells, map[string]model.Counts) {
	counts := make(map[string]model.Counts)
	for _, r := range records {
		if r.Cell == "" {
			continue
		}
		c := counts[r.Cell]
		c.Add(r.Depth.Category)
		counts[r.Cell] = c
	}
	cells := make([]string, 0, len(counts))
	for k := range counts {
		cells = append(cells, k)
	}
	sort.Strings(cells)
	return cells, counts
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func parseCell(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}
