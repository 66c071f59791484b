// Package grid maps latitude/longitude pairs onto a fixed-resolution integer
// grid. Cells are used both for spatial bucketing and as keys for station
// fingerprint knowledge.
package grid

import (
	"fmt"
	"math"
)

// Cell is one discrete grid bucket.
type Cell struct {
	LatGrid int32 `json:"lat_grid"`
	LonGrid int32 `json:"lon_grid"`
}

// CellOf buckets a coordinate at the given grid size.
func CellOf(lat, lon, size float64) Cell {
	return Cell{
		LatGrid: int32(math.Floor(lat / size)),
		LonGrid: int32(math.Floor(lon / size)),
	}
}

// Center returns the coordinates of the cell's midpoint.
func (c Cell) Center(size float64) (lat, lon float64) {
	return float64(c.LatGrid)*size + size/2, float64(c.LonGrid)*size + size/2
}

// String renders a stable map key for the cell.
func (c Cell) String() string {
	return fmt.Sprintf("%d:%d", c.LatGrid, c.LonGrid)
}
