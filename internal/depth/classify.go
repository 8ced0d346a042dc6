// Package depth classifies raw depth fields into numeric, missing or unknown.
package depth

import (
	"math"
	"strconv"
	"strings"

	"github.com/gevika/map-metagenome/internal/core/model"
)

// UnknownToken is the literal that marks an explicitly unlabeled depth.
const UnknownToken = "unknown"

// Classify maps one raw depth field to exactly one category. It never fails:
// anything that is not a decimal number and not exactly "unknown" is Missing.
func Classify(raw string) model.Depth {
	if v, ok := parseDecimal(raw); ok {
		return model.NumericDepth(v)
	}
	if raw == UnknownToken {
		return model.UnknownDepth()
	}
	return model.MissingDepth()
}

// Extent returns min/max over numeric depths, {0,0} when none are numeric.
func Extent(records []model.MarkerRecord) model.Extent {
	var ext model.Extent
	seen := false
	for _, r := range records {
		if r.Depth.Category != model.Numeric {
			continue
		}
		v := r.Depth.Value
		if !seen {
			ext = model.Extent{Min: v, Max: v}
			seen = true
			continue
		}
		if v < ext.Min {
			ext.Min = v
		}
		if v > ext.Max {
			ext.Max = v
		}
	}
	return ext
}

// accepts plain decimal notation only: optional sign, digits, one '.', optional exponent.
// strconv alone would also take nan, inf, hex floats and underscores.
func parseDecimal(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || !isDecimalLiteral(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isDecimalLiteral(s string) bool {
	i := 0
	if s[i] == '+' || s[i] == '-' {
		i++
	}
	digits, dots := 0, 0
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
			if dots > 1 {
				return false
			}
		case c == 'e' || c == 'E':
			return digits > 0 && isExponent(s[i+1:])
		default:
			return false
		}
	}
	return digits > 0
}

func isExponent(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i++
	}
	if i == len(s) {
		return false
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
