package geo

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// SRID is the spatial reference every geometry is tagged with.
const SRID = 4326

// EncodeEWKB converts a shapefile geometry to little-endian EWKB tagged with
// SRID 4326. Unsupported or empty shapes return nil, nil.
func EncodeEWKB(shape shp.Shape) ([]byte, error) {
	g := toGeom(shape)
	if g == nil {
		return nil, nil
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

func toGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(SRID)
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		return geom.NewMultiPointFlat(geom.XY, shpFlat(s.Points)).SetSRID(SRID)
	case *shp.PolyLine:
		return lineParts(s.NumParts, s.Parts, s.Points)
	case *shp.Polygon:
		return polygonParts(s.NumParts, s.Parts, s.Points)
	default:
		return nil
	}
}

// partBounds returns the [start, end) point range of part i.
func partBounds(i int32, numParts int32, parts []int32, numPoints int) (int32, int32) {
	start := parts[i]
	end := int32(numPoints)
	if i+1 < numParts {
		end = parts[i+1]
	}
	return start, end
}

func lineParts(numParts int32, parts []int32, pts []shp.Point) geom.T {
	if numParts == 0 || len(pts) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(SRID)
	for i := int32(0); i < numParts; i++ {
		start, end := partBounds(i, numParts, parts, len(pts))
		ls := geom.NewLineStringFlat(geom.XY, shpFlat(pts[start:end]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("geo: skipping malformed line part", zap.Int32("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygonParts(numParts int32, parts []int32, pts []shp.Point) geom.T {
	if numParts == 0 || len(pts) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRID)
	for i := int32(0); i < numParts; i++ {
		start, end := partBounds(i, numParts, parts, len(pts))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, shpFlat(pts[start:end]))); err != nil {
			zap.L().Debug("geo: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping malformed polygon", zap.Int32("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func shpFlat(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
