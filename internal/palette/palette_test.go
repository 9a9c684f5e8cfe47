package palette

import (
	"testing"
)

func TestSpeedToRGBA(t *testing.T) {
	testCases := []struct {
		name     string
		speed    float64
		min      float64
		max      float64
		expected RGBA
	}{
		{name: "Low end is blue", speed: 0, min: 0, max: 10, expected: RGBA{0, 0, 255, 200}},
		{name: "High end is red", speed: 10, min: 0, max: 10, expected: RGBA{255, 0, 0, 200}},
		{name: "Midpoint is green", speed: 5, min: 0, max: 10, expected: RGBA{0, 255, 0, 200}},
		{name: "Quarter mixes blue and green", speed: 2.5, min: 0, max: 10, expected: RGBA{0, 128, 128, 200}},
		{name: "Three quarters mixes green and red", speed: 7.5, min: 0, max: 10, expected: RGBA{128, 128, 0, 200}},
		{name: "Below range clamps to low end", speed: -4, min: 0, max: 10, expected: RGBA{0, 0, 255, 200}},
		{name: "Above range clamps to high end", speed: 40, min: 0, max: 10, expected: RGBA{255, 0, 0, 200}},
		{name: "Degenerate range", speed: 123, min: 5, max: 5, expected: RGBA{0, 255, 0, 200}},
		{name: "Degenerate range below", speed: -1, min: 5, max: 5, expected: RGBA{0, 255, 0, 200}},
		{name: "Inverted range", speed: 1, min: 6, max: 2, expected: RGBA{0, 255, 0, 200}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := SpeedToRGBA(tc.speed, tc.min, tc.max)
			if got != tc.expected {
				t.Errorf("SpeedToRGBA(%v, %v, %v) = %v, expected %v", tc.speed, tc.min, tc.max, got, tc.expected)
			}
		})
	}
}

func TestHex(t *testing.T) {
	if got := (RGBA{255, 0, 16, 200}).Hex(); got != "#ff0010c8" {
		t.Errorf("unexpected hex %s", got)
	}
}

func TestNewLegend(t *testing.T) {
	legend := NewLegend(0, 10, 3)

	if len(legend.Colors) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(legend.Colors))
	}
	if legend.Colors[0].RGBA != (RGBA{0, 0, 255, 200}) {
		t.Errorf("first stop should be the low end, got %v", legend.Colors[0].RGBA)
	}
	if legend.Colors[1].Value != 5 {
		t.Errorf("middle stop should be 5, got %v", legend.Colors[1].Value)
	}
	if legend.Colors[2].Color != "#ff0000c8" {
		t.Errorf("last stop should be red, got %s", legend.Colors[2].Color)
	}
}
