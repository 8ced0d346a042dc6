// Package filter decides marker visibility from a depth range and two category toggles.
package filter

import (
	"math"

	"github.com/gevika/map-metagenome/internal/core/model"
)

// State is the current filter selection. Transitions return a new value; the
// receiver is never modified. MinDepth <= MaxDepth holds for every State
// produced by Initial and the With*/Toggle* methods.
type State struct {
	MinDepth    float64 `json:"minDepth"`
	MaxDepth    float64 `json:"maxDepth"`
	ShowMissing bool    `json:"showMissing"`
	ShowUnknown bool    `json:"showUnknown"`
}

// Initial seeds the bounds from the dataset extent with both toggles on.
func Initial(ext model.Extent) State {
	lo, hi := ext.Min, ext.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	return State{MinDepth: lo, MaxDepth: hi, ShowMissing: true, ShowUnknown: true}
}

// WithRange applies a (low, high) pair from the range control. A low above
// high is capped at high.
func (s State) WithRange(lo, hi float64) State {
	if math.IsNaN(lo) {
		lo = s.MinDepth
	}
	if math.IsNaN(hi) {
		hi = s.MaxDepth
	}
	if lo > hi {
		lo = hi
	}
	s.MinDepth, s.MaxDepth = lo, hi
	return s
}

// WithMin moves the low handle only; capped at the current max.
func (s State) WithMin(v float64) State {
	if math.IsNaN(v) {
		return s
	}
	s.MinDepth = math.Min(v, s.MaxDepth)
	return s
}

// WithMax moves the high handle only; floored at the current min.
func (s State) WithMax(v float64) State {
	if math.IsNaN(v) {
		return s
	}
	s.MaxDepth = math.Max(v, s.MinDepth)
	return s
}

func (s State) ToggleMissing() State {
	s.ShowMissing = !s.ShowMissing
	return s
}

func (s State) ToggleUnknown() State {
	s.ShowUnknown = !s.ShowUnknown
	return s
}

// Contains reports whether v lies in the inclusive depth range.
func (s State) Contains(v float64) bool {
	return s.MinDepth <= v && v <= s.MaxDepth
}

// Visible is the single decision rule. Exactly one branch applies per depth
// because every depth is in exactly one category.
func Visible(d model.Depth, s State) bool {
	switch d.Category {
	case model.Numeric:
		return s.Contains(d.Value)
	case model.Unknown:
		return s.ShowUnknown
	default:
		return s.ShowMissing
	}
}
