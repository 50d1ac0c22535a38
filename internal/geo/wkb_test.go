package geo

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestEncodeEWKB_Point(t *testing.T) {
	data, err := EncodeEWKB(&shp.Point{X: 77.2, Y: 28.6})
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	p, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, SRID, p.SRID())
	assert.InDelta(t, 77.2, p.X(), 1e-12)
	assert.InDelta(t, 28.6, p.Y(), 1e-12)
}

func TestEncodeEWKB_MultiPartPolygon(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			{X: 77.0, Y: 28.0},
			{X: 77.0, Y: 29.0},
			{X: 78.0, Y: 29.0},
			{X: 78.0, Y: 28.0},
			{X: 77.0, Y: 28.0},
			{X: 79.0, Y: 28.0},
			{X: 79.0, Y: 29.0},
			{X: 80.0, Y: 29.0},
			{X: 80.0, Y: 28.0},
			{X: 79.0, Y: 28.0},
		},
	}

	data, err := EncodeEWKB(poly)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestEncodeEWKB_PolyLine(t *testing.T) {
	pl := &shp.PolyLine{
		NumParts: 1,
		Parts:    []int32{0},
		Points: []shp.Point{
			{X: 77.0, Y: 28.0},
			{X: 77.1, Y: 28.1},
			{X: 77.2, Y: 28.2},
		},
	}

	data, err := EncodeEWKB(pl)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	mls, ok := g.(*geom.MultiLineString)
	require.True(t, ok)
	assert.Equal(t, 1, mls.NumLineStrings())
}

func TestEncodeEWKB_Empty(t *testing.T) {
	data, err := EncodeEWKB(&shp.PolyLine{})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = EncodeEWKB(&shp.MultiPoint{})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = EncodeEWKB(&shp.Null{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRepresentativePoint(t *testing.T) {
	p := representativePoint(&shp.Point{X: 77.2, Y: 28.6})
	assert.Equal(t, Point{Lat: 28.6, Lon: 77.2}, p)

	line := &shp.PolyLine{
		Box:      shp.Box{MinX: 77.0, MinY: 28.0, MaxX: 78.0, MaxY: 29.0},
		NumParts: 1,
		Parts:    []int32{0},
		Points:   []shp.Point{{X: 77.0, Y: 28.0}, {X: 78.0, Y: 29.0}},
	}
	p = representativePoint(line)
	assert.InDelta(t, 28.5, p.Lat, 1e-12)
	assert.InDelta(t, 77.5, p.Lon, 1e-12)
}
