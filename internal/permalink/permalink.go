package permalink

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"github.com/Michaelvilleneuve/windviz-go/internal/layer"
	"github.com/Michaelvilleneuve/windviz-go/internal/weather"
)

// State is the restorable part of a viewer session. Zero values and nil
// pointers mean "not set".
type State struct {
	DatasetID       string                  `json:"datasetId,omitempty"`
	HeightMeters    *float64                `json:"heightMeters,omitempty"`
	NX              int                     `json:"nx,omitempty"`
	NY              int                     `json:"ny,omitempty"`
	Visualization   layer.VisualizationType `json:"visualizationType,omitempty"`
	Center          *geometry.Point         `json:"center,omitempty"`
	Zoom            *float64                `json:"zoom,omitempty"`
	Date            string                  `json:"date,omitempty"`
	IntervalMinutes int                     `json:"intervalMinutes,omitempty"`
}

// Encode renders s as a URL query string (without the leading '?').
func Encode(s State) string {
	params := url.Values{}

	if s.DatasetID != "" {
		params.Set("dataset", s.DatasetID)
	}
	if s.HeightMeters != nil {
		params.Set("height", strconv.FormatFloat(*s.HeightMeters, 'f', -1, 64))
	}
	if s.NX > 0 {
		params.Set("nx", strconv.Itoa(s.NX))
	}
	if s.NY > 0 {
		params.Set("ny", strconv.Itoa(s.NY))
	}
	if s.Visualization != "" {
		params.Set("viz", string(s.Visualization))
	}
	if s.Center != nil {
		params.Set("lon", strconv.FormatFloat(s.Center.Lon, 'f', 6, 64))
		params.Set("lat", strconv.FormatFloat(s.Center.Lat, 'f', 6, 64))
	}
	if s.Zoom != nil {
		params.Set("zoom", strconv.FormatFloat(*s.Zoom, 'f', 2, 64))
	}
	if s.Date != "" {
		params.Set("date", s.Date)
	}
	if s.IntervalMinutes > 0 {
		params.Set("interval", strconv.Itoa(s.IntervalMinutes))
	}

	return params.Encode()
}

// Decode parses a query string, with or without a leading '?'. Malformed
// values are dropped field by field and never fail the whole parse.
func Decode(raw string) State {
	var s State

	// ParseQuery keeps every pair it understood alongside the error.
	params, _ := url.ParseQuery(strings.TrimPrefix(raw, "?"))

	if v := params.Get("dataset"); v != "" {
		s.DatasetID = v
	}
	if h, ok := parseFloat(params.Get("height")); ok {
		s.HeightMeters = &h
	}
	if nx, ok := parsePositiveInt(params.Get("nx")); ok {
		s.NX = nx
	}
	if ny, ok := parsePositiveInt(params.Get("ny")); ok {
		s.NY = ny
	}
	if vt, ok := layer.ParseVisualizationType(params.Get("viz")); ok {
		s.Visualization = vt
	}

	lon, lonOK := parseFloat(params.Get("lon"))
	lat, latOK := parseFloat(params.Get("lat"))
	if lonOK && latOK && lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90 {
		s.Center = &geometry.Point{Lat: lat, Lon: lon}
	}
	if z, ok := parseFloat(params.Get("zoom")); ok && z >= 0 {
		s.Zoom = &z
	}

	if d := params.Get("date"); d != "" {
		if _, err := time.Parse(weather.DATE_LAYOUT, d); err == nil {
			s.Date = d
		}
	}
	if i, ok := parsePositiveInt(params.Get("interval")); ok && weather.ValidInterval(i) {
		s.IntervalMinutes = i
	}

	return s
}

func parseFloat(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parsePositiveInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
