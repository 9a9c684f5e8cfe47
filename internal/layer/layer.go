package layer

import (
	"fmt"

	"github.com/Michaelvilleneuve/windviz-go/internal/grid"
)

// VisualizationType selects how a wind field is drawn.
type VisualizationType string

const (
	Arrows  VisualizationType = "arrows"
	Heatmap VisualizationType = "heatmap"
)

func ParseVisualizationType(s string) (VisualizationType, bool) {
	switch VisualizationType(s) {
	case Arrows, Heatmap:
		return VisualizationType(s), true
	}
	return "", false
}

// Position is a [lon, lat] pair.
type Position [2]float64

// Layer is the list of draw primitives for one grid and visualization type.
// ID is derived from the inputs only so renderers can diff rebuilds.
type Layer struct {
	ID   string            `json:"id"`
	Type VisualizationType `json:"type"`

	Arrows []Arrow    `json:"arrows,omitempty"`
	Cells  []HeatCell `json:"cells,omitempty"`

	SizeMinPixels   float64 `json:"sizeMinPixels,omitempty"`
	SizeMaxPixels   float64 `json:"sizeMaxPixels,omitempty"`
	RadiusMeters    float64 `json:"radiusMeters,omitempty"`
	RadiusMinPixels float64 `json:"radiusMinPixels,omitempty"`
	RadiusMaxPixels float64 `json:"radiusMaxPixels,omitempty"`
}

// Len returns the number of primitives in the layer.
func (l *Layer) Len() int {
	return len(l.Arrows) + len(l.Cells)
}

// Build converts a grid into draw primitives. It has no side effects.
func Build(g *grid.WindField, vt VisualizationType) (*Layer, error) {
	if g == nil {
		return nil, fmt.Errorf("no wind field to render")
	}

	switch vt {
	case Arrows:
		return buildArrowLayer(g), nil
	case Heatmap:
		return buildHeatmapLayer(g), nil
	default:
		return nil, fmt.Errorf("unknown visualization type %q", vt)
	}
}

// eachCell visits cells row-major and skips cells without data.
func eachCell(g *grid.WindField, fn func(idx int, pos Position)) {
	for j := 0; j < g.NY; j++ {
		for i := 0; i < g.NX; i++ {
			idx := g.Index(i, j)
			if !g.HasData(idx) {
				continue
			}
			lon, lat := g.Position(i, j)
			fn(idx, Position{lon, lat})
		}
	}
}
