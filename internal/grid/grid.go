package grid

import (
	"math"

	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
)

// WindField is one decoded backend response. It is built once by Decode and
// never mutated afterwards; a newer response replaces it wholesale.
type WindField struct {
	DatasetID    string
	HeightMeters float64

	BBox geometry.BBox
	NX   int
	NY   int

	// Row-major, index = j*NX + i. Non-finite values mark cells without data.
	U []float32
	V []float32

	SpeedMin float64
	SpeedMax float64

	// Optional explicit cell coordinates, same indexing as U and V.
	Lon []float32
	Lat []float32
}

func (g *WindField) Len() int {
	return g.NX * g.NY
}

func (g *WindField) Index(i, j int) int {
	return j*g.NX + i
}

// Position resolves the geographic position of cell (i, j). Each axis uses
// the explicit coordinate when the backend sent one, the bbox cell centre
// otherwise.
func (g *WindField) Position(i, j int) (lon, lat float64) {
	idx := g.Index(i, j)
	lon, lat = g.BBox.CellCenter(i, j, g.NX, g.NY)
	if g.Lon != nil {
		lon = float64(g.Lon[idx])
	}
	if g.Lat != nil {
		lat = float64(g.Lat[idx])
	}
	return lon, lat
}

// HasData reports whether both wind components of cell idx are finite.
func (g *WindField) HasData(idx int) bool {
	u := float64(g.U[idx])
	v := float64(g.V[idx])
	return !math.IsNaN(u) && !math.IsInf(u, 0) && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Speed returns the wind speed in m/s of cell idx.
func (g *WindField) Speed(idx int) float64 {
	return math.Hypot(float64(g.U[idx]), float64(g.V[idx]))
}
