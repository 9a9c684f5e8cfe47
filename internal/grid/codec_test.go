package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"github.com/matryer/is"
)

func TestFloat32RoundTrip(t *testing.T) {
	is := is.New(t)

	values := []float32{0, 1.5, -3.25, math.MaxFloat32, math.SmallestNonzeroFloat32, 1e-7, float32(math.Inf(-1))}
	decoded, err := DecodeFloat32(EncodeFloat32(values))
	is.NoErr(err)
	is.Equal(len(decoded), len(values))
	for i := range values {
		is.Equal(decoded[i], values[i])
	}
}

func TestFloat32RoundTripKeepsNaN(t *testing.T) {
	is := is.New(t)

	decoded, err := DecodeFloat32(EncodeFloat32([]float32{float32(math.NaN())}))
	is.NoErr(err)
	is.True(math.IsNaN(float64(decoded[0])))
}

func TestDecodeGrid(t *testing.T) {
	is := is.New(t)

	p := Payload{
		DatasetID:    "zurich",
		HeightMeters: 10,
		BBox:         geometry.BBox{MinLon: 8, MaxLon: 9, MinLat: 47, MaxLat: 48},
		NX:           2,
		NY:           2,
		UB64:         EncodeFloat32([]float32{1, 2, 3, 4}),
		VB64:         EncodeFloat32([]float32{0, 0, 1, 1}),
		SpeedMin:     0,
		SpeedMax:     5,
	}

	g, err := Decode(p)
	is.NoErr(err)
	is.Equal(g.DatasetID, "zurich")
	is.Equal(g.Len(), 4)
	is.Equal(g.U[g.Index(1, 1)], float32(4))
	is.Equal(g.Lon, nil)

	lon, lat := g.Position(0, 0)
	is.Equal(lon, 8.25)
	is.Equal(lat, 47.25)
}

func TestDecodeUsesExplicitCoordinates(t *testing.T) {
	is := is.New(t)

	g, err := Decode(Payload{
		NX:     1,
		NY:     2,
		BBox:   geometry.BBox{MinLon: 0, MaxLon: 1, MinLat: 0, MaxLat: 1},
		UB64:   EncodeFloat32([]float32{1, 1}),
		VB64:   EncodeFloat32([]float32{1, 1}),
		LonB64: EncodeFloat32([]float32{7.5, 7.5}),
		LatB64: EncodeFloat32([]float32{46, 46.5}),
	})
	is.NoErr(err)

	lon, lat := g.Position(0, 1)
	is.Equal(lon, 7.5)
	is.Equal(lat, 46.5)
}

func TestDecodeResolvesEachAxisOnItsOwn(t *testing.T) {
	testCases := []struct {
		name   string
		lonB64 string
		latB64 string
		lon    float64
		lat    float64
	}{
		{name: "longitude only", lonB64: EncodeFloat32([]float32{7.5, 7.5}), lon: 7.5, lat: 0.75},
		{name: "latitude only", latB64: EncodeFloat32([]float32{46, 46.5}), lon: 0.5, lat: 46.5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)

			g, err := Decode(Payload{
				NX:     1,
				NY:     2,
				BBox:   geometry.BBox{MinLon: 0, MaxLon: 1, MinLat: 0, MaxLat: 1},
				UB64:   EncodeFloat32([]float32{1, 1}),
				VB64:   EncodeFloat32([]float32{1, 1}),
				LonB64: tc.lonB64,
				LatB64: tc.latB64,
			})
			is.NoErr(err)

			lon, lat := g.Position(0, 1)
			is.Equal(lon, tc.lon)
			is.Equal(lat, tc.lat)

			p := Encode(g)
			is.Equal(p.LonB64, tc.lonB64)
			is.Equal(p.LatB64, tc.latB64)
		})
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	testCases := []struct {
		name  string
		p     Payload
		field string
	}{
		{
			name:  "short u",
			p:     Payload{NX: 2, NY: 2, UB64: EncodeFloat32([]float32{1, 2, 3}), VB64: EncodeFloat32([]float32{1, 2, 3, 4})},
			field: "u",
		},
		{
			name:  "long v",
			p:     Payload{NX: 2, NY: 2, UB64: EncodeFloat32([]float32{1, 2, 3, 4}), VB64: EncodeFloat32([]float32{1, 2, 3, 4, 5})},
			field: "v",
		},
		{
			name: "short lat",
			p: Payload{
				NX: 1, NY: 2,
				UB64: EncodeFloat32([]float32{1, 2}), VB64: EncodeFloat32([]float32{1, 2}),
				LonB64: EncodeFloat32([]float32{1, 2}), LatB64: EncodeFloat32([]float32{1}),
			},
			field: "lat",
		},
		{
			name:  "bad base64",
			p:     Payload{NX: 1, NY: 1, UB64: "!!!", VB64: EncodeFloat32([]float32{1})},
			field: "u",
		},
		{
			name:  "truncated bytes",
			p:     Payload{NX: 1, NY: 1, UB64: "AAAA", VB64: EncodeFloat32([]float32{1})},
			field: "u",
		},
		{
			name:  "zero dimensions",
			p:     Payload{NX: 0, NY: 3},
			field: "nx*ny",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)

			g, err := Decode(tc.p)
			is.True(g == nil)

			var malformed *MalformedGridError
			is.True(errors.As(err, &malformed))
			is.Equal(malformed.Field, tc.field)
		})
	}
}

func TestMalformedGridErrorNamesLengths(t *testing.T) {
	is := is.New(t)

	_, err := Decode(Payload{NX: 3, NY: 3, UB64: EncodeFloat32([]float32{1}), VB64: EncodeFloat32([]float32{1})})
	is.Equal(err.Error(), "malformed grid: u has length 1, expected 9")
}

func TestEncodeDecodeGrid(t *testing.T) {
	is := is.New(t)

	g := &WindField{
		DatasetID: "d", NX: 2, NY: 1,
		BBox: geometry.BBox{MinLon: 0, MaxLon: 2, MinLat: 0, MaxLat: 1},
		U:    []float32{1, float32(math.NaN())},
		V:    []float32{2, 3},
	}

	decoded, err := Decode(Encode(g))
	is.NoErr(err)
	is.Equal(decoded.U[0], float32(1))
	is.True(!decoded.HasData(1))
	is.True(decoded.HasData(0))
}
