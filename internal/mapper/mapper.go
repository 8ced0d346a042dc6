// Package mapper converts marker positions to H3 cells.
package mapper

import (
	"github.com/gevika/map-metagenome/internal/core/model"
)

type Interface interface {
	CellFor(pos model.Position, res int) (string, error)
}
