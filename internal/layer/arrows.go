package layer

import (
	"fmt"
	"math"

	"github.com/Michaelvilleneuve/windviz-go/internal/grid"
	"github.com/Michaelvilleneuve/windviz-go/internal/palette"
)

const (
	ARROW_BASE_SIZE       = 18
	ARROW_SIZE_PER_SPEED  = 2.5
	ARROW_SIZE_MIN_PIXELS = 8
	ARROW_SIZE_MAX_PIXELS = 60
)

type Arrow struct {
	Position   Position     `json:"position"`
	Speed      float64      `json:"speed"`
	HeadingDeg float64      `json:"headingDeg"`
	Size       float64      `json:"size"`
	Color      palette.RGBA `json:"color"`
}

// HeadingDegFromUV returns the compass bearing of the vector (u, v):
// 0 points north (v positive) and angles grow clockwise towards east.
func HeadingDegFromUV(u, v float64) float64 {
	deg := math.Atan2(u, v) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// ArrowSize scales the glyph linearly with speed, clamped to the pixel range.
func ArrowSize(speed float64) float64 {
	size := ARROW_BASE_SIZE + ARROW_SIZE_PER_SPEED*speed
	return math.Max(ARROW_SIZE_MIN_PIXELS, math.Min(ARROW_SIZE_MAX_PIXELS, size))
}

func arrowLayerID(g *grid.WindField) string {
	return fmt.Sprintf("wind-arrows-%s-%g", g.DatasetID, g.HeightMeters)
}

func buildArrowLayer(g *grid.WindField) *Layer {
	arrows := make([]Arrow, 0, g.Len())

	eachCell(g, func(idx int, pos Position) {
		u := float64(g.U[idx])
		v := float64(g.V[idx])
		speed := math.Hypot(u, v)

		arrows = append(arrows, Arrow{
			Position:   pos,
			Speed:      speed,
			HeadingDeg: HeadingDegFromUV(u, v),
			Size:       ArrowSize(speed),
			Color:      palette.SpeedToRGBA(speed, g.SpeedMin, g.SpeedMax),
		})
	})

	return &Layer{
		ID:            arrowLayerID(g),
		Type:          Arrows,
		Arrows:        arrows,
		SizeMinPixels: ARROW_SIZE_MIN_PIXELS,
		SizeMaxPixels: ARROW_SIZE_MAX_PIXELS,
	}
}
