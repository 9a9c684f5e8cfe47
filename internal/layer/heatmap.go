package layer

import (
	"math"

	"github.com/Michaelvilleneuve/windviz-go/internal/grid"
	"github.com/Michaelvilleneuve/windviz-go/internal/palette"
)

const (
	HEATMAP_LAYER_ID = "wind-heatmap"
	HEATMAP_ALPHA    = 60

	// Rough metres per degree used to turn the average cell footprint into a
	// radius. Not latitude corrected; the heatmap styling is tuned to it.
	HEATMAP_METERS_PER_DEGREE = 150000

	HEATMAP_RADIUS_MIN_PIXELS = 6
	HEATMAP_RADIUS_MAX_PIXELS = 6
)

type HeatCell struct {
	Position Position     `json:"position"`
	Speed    float64      `json:"speed"`
	Color    palette.RGBA `json:"color"`
}

// HeatmapRadiusMeters derives the cell radius from the grid's average
// cell footprint in degrees.
func HeatmapRadiusMeters(g *grid.WindField) float64 {
	avgSpan := (g.BBox.Width() + g.BBox.Height()) / 2
	cellSize := avgSpan / math.Sqrt(float64(g.NX*g.NY))
	return cellSize * HEATMAP_METERS_PER_DEGREE
}

func buildHeatmapLayer(g *grid.WindField) *Layer {
	cells := make([]HeatCell, 0, g.Len())

	eachCell(g, func(idx int, pos Position) {
		speed := g.Speed(idx)
		cells = append(cells, HeatCell{
			Position: pos,
			Speed:    speed,
			Color:    palette.SpeedToRGBA(speed, g.SpeedMin, g.SpeedMax).WithAlpha(HEATMAP_ALPHA),
		})
	})

	return &Layer{
		ID:              HEATMAP_LAYER_ID,
		Type:            Heatmap,
		Cells:           cells,
		RadiusMeters:    HeatmapRadiusMeters(g),
		RadiusMinPixels: HEATMAP_RADIUS_MIN_PIXELS,
		RadiusMaxPixels: HEATMAP_RADIUS_MAX_PIXELS,
	}
}
