package geometry

import (
	"fmt"
	"math"
)

const (
	EARTH_RADIUS_KM = 6371 // Earth radius in kilometers

	// Web mercator world width in pixels at zoom 0, as used by MapLibre.
	TILE_SIZE = 512
)

// BBox is a geographic extent in degrees.
type BBox struct {
	MinLon float64 `json:"minLon" yaml:"minLon"`
	MaxLon float64 `json:"maxLon" yaml:"maxLon"`
	MinLat float64 `json:"minLat" yaml:"minLat"`
	MaxLat float64 `json:"maxLat" yaml:"maxLat"`
}

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that every bound is finite and that min < max on both axes.
func (b BBox) Validate() error {
	for _, v := range []float64{b.MinLon, b.MaxLon, b.MinLat, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bbox has non-finite bound: %+v", b)
		}
	}
	if b.MinLon >= b.MaxLon {
		return fmt.Errorf("bbox minLon %f must be less than maxLon %f", b.MinLon, b.MaxLon)
	}
	if b.MinLat >= b.MaxLat {
		return fmt.Errorf("bbox minLat %f must be less than maxLat %f", b.MinLat, b.MaxLat)
	}
	return nil
}

func (b BBox) Center() Point {
	return Point{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

func (b BBox) Width() float64  { return b.MaxLon - b.MinLon }
func (b BBox) Height() float64 { return b.MaxLat - b.MinLat }

// CellCenter returns the centre of cell (i, j) of an nx*ny grid laid over b.
func (b BBox) CellCenter(i, j, nx, ny int) (lon, lat float64) {
	lon = b.MinLon + (float64(i)+0.5)/float64(nx)*(b.MaxLon-b.MinLon)
	lat = b.MinLat + (float64(j)+0.5)/float64(ny)*(b.MaxLat-b.MinLat)
	return lon, lat
}

func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// HaversineDistance returns the great-circle distance between two points in km.
func HaversineDistance(a, b Point) float64 {
	lat1Rad := a.Lat * math.Pi / 180
	lat2Rad := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EARTH_RADIUS_KM * c
}

// ViewBBox derives the extent visible in a width x height pixel viewport
// centred on center at the given web mercator zoom.
func ViewBBox(center Point, zoom float64, width, height int) BBox {
	world := TILE_SIZE * math.Pow(2, zoom)
	cx, cy := project(center, world)

	halfW := float64(width) / 2
	halfH := float64(height) / 2

	nw := unproject(cx-halfW, cy-halfH, world)
	se := unproject(cx+halfW, cy+halfH, world)

	return BBox{
		MinLon: math.Max(nw.Lon, -180),
		MaxLon: math.Min(se.Lon, 180),
		MinLat: se.Lat,
		MaxLat: nw.Lat,
	}
}

func project(p Point, world float64) (float64, float64) {
	x := (p.Lon + 180.0) / 360.0 * world
	latRad := p.Lat * math.Pi / 180.0
	y := (1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0 * world
	return x, y
}

func unproject(x, y, world float64) Point {
	lon := x/world*360.0 - 180.0
	n := math.Pi * (1 - 2*y/world)
	lat := math.Atan(math.Sinh(n)) * 180.0 / math.Pi
	return Point{Lat: lat, Lon: lon}
}
