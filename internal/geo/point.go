// Package geo holds the small amount of geometry the feature pipeline needs:
// point distances, shapefile reading, EWKB encoding and ESRI ASCII rasters.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// KMPerDegree approximates the length of one degree of latitude.
const KMPerDegree = 111.0

const earthRadiusKM = 6371.0088

// Point is a longitude/latitude pair in WGS84.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Coord returns p as an XY coordinate (x = longitude).
func (p Point) Coord() geom.Coord {
	return geom.Coord{p.Lon, p.Lat}
}

// DistanceFunc measures the distance between two points in kilometres.
type DistanceFunc func(a, b Point) float64

// PlanarKM is the Euclidean distance in degree space scaled by KMPerDegree.
// It ignores longitude convergence and matches how the training data was built.
func PlanarKM(a, b Point) float64 {
	return xy.Distance(a.Coord(), b.Coord()) * KMPerDegree
}

// HaversineKM is the great-circle distance on a spherical earth.
func HaversineKM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceByName resolves a configured metric name.
func DistanceByName(name string) (DistanceFunc, error) {
	switch name {
	case "", "planar":
		return PlanarKM, nil
	case "haversine":
		return HaversineKM, nil
	default:
		return nil, eris.Errorf("geo: unknown distance metric %q", name)
	}
}

// Nearest returns the smallest distance from origin to any of pts.
// ok is false when pts is empty.
func Nearest(origin Point, pts []Point, dist DistanceFunc) (km float64, ok bool) {
	if len(pts) == 0 {
		return 0, false
	}
	best := math.Inf(1)
	for _, p := range pts {
		if d := dist(origin, p); d < best {
			best = d
		}
	}
	return best, true
}
