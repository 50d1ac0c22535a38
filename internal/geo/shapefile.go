package geo

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Feature is one shapefile record reduced to what the pipeline stores.
type Feature struct {
	// Point is the representative point: the point itself, or the
	// bounding-box centre of a line, polygon or multipoint.
	Point Point
	// Geometry is the EWKB encoding, nil for unsupported shape types.
	Geometry   []byte
	Attributes map[string]string
}

// ReadShapefile reads every record of the shapefile at path.
func ReadShapefile(path string) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var out []Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			skipped++
			continue
		}

		wkb, encErr := EncodeEWKB(shape)
		if encErr != nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				attrs[name] = val
			}
		}

		out = append(out, Feature{
			Point:      representativePoint(shape),
			Geometry:   wkb,
			Attributes: attrs,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "geo: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

// ReadShapefilePoints returns only the representative points of a shapefile.
func ReadShapefilePoints(path string) ([]Point, error) {
	features, err := ReadShapefile(path)
	if err != nil {
		return nil, err
	}
	pts := make([]Point, len(features))
	for i, f := range features {
		pts[i] = f.Point
	}
	return pts, nil
}

func representativePoint(shape shp.Shape) Point {
	if p, ok := shape.(*shp.Point); ok {
		return Point{Lat: p.Y, Lon: p.X}
	}
	box := shape.BBox()
	return Point{
		Lat: (box.MinY + box.MaxY) / 2,
		Lon: (box.MinX + box.MaxX) / 2,
	}
}
