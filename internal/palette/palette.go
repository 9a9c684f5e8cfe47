package palette

import (
	"fmt"
	"image/color"
	"math"
)

// Alpha used for arrow glyphs. Heatmap cells override it with a lower value.
const DEFAULT_ALPHA = 200

// RGBA is serialised as a four element array, the form map renderers expect.
type RGBA [4]uint8

func (c RGBA) Color() color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
}

func (c RGBA) WithAlpha(a uint8) RGBA {
	c[3] = a
	return c
}

// Hex formats the colour as #RRGGBBAA.
func (c RGBA) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c[0], c[1], c[2], c[3])
}

// SpeedToRGBA maps a speed onto the blue -> green -> red diverging ramp.
// Blue fades out and green fades in up to the midpoint of [min, max], then
// green fades out while red fades in. A degenerate range maps to the midpoint.
func SpeedToRGBA(speed, min, max float64) RGBA {
	t := 0.5
	if max > min {
		t = (speed - min) / (max - min)
	}
	x := math.Max(0, math.Min(1, t))
	if math.IsNaN(x) {
		x = 0.5
	}

	r := math.Round(255 * math.Max(0, (x-0.5)*2))
	var g float64
	if x < 0.5 {
		g = math.Round(255 * x * 2)
	} else {
		g = math.Round(255 * (1 - (x-0.5)*2))
	}
	b := math.Round(255 * math.Max(0, (0.5-x)*2))

	return RGBA{uint8(r), uint8(g), uint8(b), DEFAULT_ALPHA}
}

// ColorPoint is one legend stop.
type ColorPoint struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
	RGBA  RGBA    `json:"rgba"`
}

type Legend struct {
	Unit   string       `json:"unit"`
	Min    float64      `json:"min"`
	Max    float64      `json:"max"`
	Colors []ColorPoint `json:"colors"`
}

// NewLegend samples the ramp at steps evenly spaced speeds from min to max.
func NewLegend(min, max float64, steps int) Legend {
	if steps < 2 {
		steps = 2
	}
	legend := Legend{Unit: "m/s", Min: min, Max: max, Colors: make([]ColorPoint, 0, steps)}
	for i := 0; i < steps; i++ {
		value := min + (max-min)*float64(i)/float64(steps-1)
		c := SpeedToRGBA(value, min, max)
		legend.Colors = append(legend.Colors, ColorPoint{
			Value: math.Round(value*100) / 100,
			Color: c.Hex(),
			RGBA:  c,
		})
	}
	return legend
}
