package grid

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
)

// Payload is the JSON body returned by the backend wind endpoint.
type Payload struct {
	DatasetID    string        `json:"datasetId"`
	HeightMeters float64       `json:"heightMeters"`
	BBox         geometry.BBox `json:"bbox"`
	NX           int           `json:"nx"`
	NY           int           `json:"ny"`

	UB64 string `json:"u_b64"`
	VB64 string `json:"v_b64"`

	SpeedMin float64 `json:"speedMin"`
	SpeedMax float64 `json:"speedMax"`

	LonB64 string `json:"lon_b64,omitempty"`
	LatB64 string `json:"lat_b64,omitempty"`
}

// MalformedGridError reports a payload that cannot be turned into a valid grid.
type MalformedGridError struct {
	Field    string
	Expected int
	Actual   int
	Err      error
}

func (e *MalformedGridError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed grid: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed grid: %s has length %d, expected %d", e.Field, e.Actual, e.Expected)
}

func (e *MalformedGridError) Unwrap() error {
	return e.Err
}

// Decode validates a backend payload and returns the immutable grid it
// describes. No partially decoded grid is ever returned.
func Decode(p Payload) (*WindField, error) {
	if p.NX <= 0 || p.NY <= 0 {
		return nil, &MalformedGridError{Field: "nx*ny", Err: fmt.Errorf("dimensions must be positive, got %dx%d", p.NX, p.NY)}
	}
	expected := p.NX * p.NY

	u, err := decodeField("u", p.UB64, expected)
	if err != nil {
		return nil, err
	}
	v, err := decodeField("v", p.VB64, expected)
	if err != nil {
		return nil, err
	}

	// each coordinate axis is optional on its own
	var lon, lat []float32
	if p.LonB64 != "" {
		if lon, err = decodeField("lon", p.LonB64, expected); err != nil {
			return nil, err
		}
	}
	if p.LatB64 != "" {
		if lat, err = decodeField("lat", p.LatB64, expected); err != nil {
			return nil, err
		}
	}

	return &WindField{
		DatasetID:    p.DatasetID,
		HeightMeters: p.HeightMeters,
		BBox:         p.BBox,
		NX:           p.NX,
		NY:           p.NY,
		U:            u,
		V:            v,
		SpeedMin:     p.SpeedMin,
		SpeedMax:     p.SpeedMax,
		Lon:          lon,
		Lat:          lat,
	}, nil
}

func decodeField(name, b64 string, expected int) ([]float32, error) {
	values, err := DecodeFloat32(b64)
	if err != nil {
		return nil, &MalformedGridError{Field: name, Err: err}
	}
	if len(values) != expected {
		return nil, &MalformedGridError{Field: name, Expected: expected, Actual: len(values)}
	}
	return values, nil
}

// DecodeFloat32 turns base64 of raw little-endian float32 bytes into values.
func DecodeFloat32(b64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("byte length %d is not a multiple of 4", len(raw))
	}

	values := make([]float32, len(raw)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return values, nil
}

// EncodeFloat32 is the inverse of DecodeFloat32.
func EncodeFloat32(values []float32) string {
	raw := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// Encode builds the payload the backend would send for g.
func Encode(g *WindField) Payload {
	p := Payload{
		DatasetID:    g.DatasetID,
		HeightMeters: g.HeightMeters,
		BBox:         g.BBox,
		NX:           g.NX,
		NY:           g.NY,
		UB64:         EncodeFloat32(g.U),
		VB64:         EncodeFloat32(g.V),
		SpeedMin:     g.SpeedMin,
		SpeedMax:     g.SpeedMax,
	}
	if g.Lon != nil {
		p.LonB64 = EncodeFloat32(g.Lon)
	}
	if g.Lat != nil {
		p.LatB64 = EncodeFloat32(g.Lat)
	}
	return p
}
