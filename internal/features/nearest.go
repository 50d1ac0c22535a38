package features

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hmpi-cli/internal/geo"
	"github.com/sells-group/hmpi-cli/internal/model"
	"github.com/sells-group/hmpi-cli/internal/resilience"
	"github.com/sells-group/hmpi-cli/pkg/overpass"
)

// ErrNoFeatures is returned when a backend finds no feature of a category.
var ErrNoFeatures = eris.New("features: no matching features found")

// Category is a kind of map feature whose nearest distance is a model input.
type Category struct {
	Name    string
	Feature string
	// Filter selects the category's ways in OpenStreetMap.
	Filter overpass.Filter
}

// Categories lists the nearest-distance categories.
var Categories = []Category{
	{Name: "industrial", Feature: DistIndustrial, Filter: overpass.Filter{Key: "landuse", Value: "industrial"}},
	{Name: "drain_outfall", Feature: DistDrainOutfall, Filter: overpass.Filter{Key: "waterway", Value: "drain"}},
	{Name: "landfill", Feature: DistLandfill, Filter: overpass.Filter{Key: "landuse", Value: "landfill"}},
	{Name: "major_highway", Feature: DistMajorHighway, Filter: overpass.Filter{Key: "highway", Value: "motorway|trunk|primary", Regex: true}},
}

// CategoryByName looks up a category.
func CategoryByName(name string) (Category, bool) {
	for _, c := range Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// PointFinder returns candidate feature positions of a category near origin.
// Backends may return every known position or only the closest few.
type PointFinder interface {
	Name() string
	Candidates(ctx context.Context, category Category, origin geo.Point) ([]geo.Point, error)
}

// NearestSource fills one dist_to_nearest_* feature with the distance to the
// closest candidate of its category.
type NearestSource struct {
	category Category
	finder   PointFinder
	dist     geo.DistanceFunc
}

// NewNearestSource creates a NearestSource. A nil dist means planar distance.
func NewNearestSource(category Category, finder PointFinder, dist geo.DistanceFunc) *NearestSource {
	if dist == nil {
		dist = geo.PlanarKM
	}
	return &NearestSource{category: category, finder: finder, dist: dist}
}

// Name implements Source.
func (s *NearestSource) Name() string { return s.finder.Name() }

// Feature implements Source.
func (s *NearestSource) Feature() string { return s.category.Feature }

// Value implements Source.
func (s *NearestSource) Value(ctx context.Context, loc model.Location) (float64, error) {
	origin := geo.Point{Lat: loc.Latitude, Lon: loc.Longitude}
	pts, err := s.finder.Candidates(ctx, s.category, origin)
	if err != nil {
		return 0, err
	}
	km, ok := geo.Nearest(origin, pts, s.dist)
	if !ok {
		return 0, ErrNoFeatures
	}
	return checkFinite(km, nil)
}

// OverpassFinder fetches every way of a category inside a country from the
// Overpass API. The coordinate set does not depend on the origin, so it is
// cached per category.
type OverpassFinder struct {
	client      overpass.Client
	guard       *resilience.Guard
	cache       *Cache
	country     string
	timeoutSecs int
}

// NewOverpassFinder creates an OverpassFinder for an ISO 3166-1 country code.
func NewOverpassFinder(client overpass.Client, guard *resilience.Guard, cache *Cache, country string, timeoutSecs int) *OverpassFinder {
	if country == "" {
		country = "IN"
	}
	return &OverpassFinder{client: client, guard: guard, cache: cache, country: country, timeoutSecs: timeoutSecs}
}

// Name implements PointFinder.
func (f *OverpassFinder) Name() string { return "overpass" }

// Candidates implements PointFinder.
func (f *OverpassFinder) Candidates(ctx context.Context, category Category, _ geo.Point) ([]geo.Point, error) {
	query := overpass.AreaQuery(f.country, category.Filter, f.timeoutSecs)
	key := f.country + ":" + category.Filter.String()

	return cached(ctx, f.cache, f.Name(), key, func(ctx context.Context) ([]geo.Point, error) {
		elems, err := resilience.Call(ctx, f.guard, f.Name(), "query", func(ctx context.Context) ([]overpass.Element, error) {
			return f.client.Query(ctx, query)
		})
		if err != nil {
			return nil, err
		}

		pts := make([]geo.Point, 0, len(elems))
		for _, e := range elems {
			if lat, lon, ok := e.Coordinates(); ok {
				pts = append(pts, geo.Point{Lat: lat, Lon: lon})
			}
		}
		if len(pts) == 0 {
			return nil, ErrNoFeatures
		}
		return pts, nil
	})
}

// ShapefileFinder serves candidates from local shapefiles, one per category.
// Each file is read on first use and kept in memory.
type ShapefileFinder struct {
	paths map[string]string

	mu     sync.Mutex
	loaded map[string][]geo.Point
}

// NewShapefileFinder creates a ShapefileFinder from category name to path.
func NewShapefileFinder(paths map[string]string) *ShapefileFinder {
	return &ShapefileFinder{paths: paths, loaded: make(map[string][]geo.Point)}
}

// Name implements PointFinder.
func (f *ShapefileFinder) Name() string { return "shapefile" }

// Categories returns the configured category names, sorted.
func (f *ShapefileFinder) Categories() []string {
	out := make([]string, 0, len(f.paths))
	for k := range f.paths {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Candidates implements PointFinder.
func (f *ShapefileFinder) Candidates(_ context.Context, category Category, _ geo.Point) ([]geo.Point, error) {
	path, ok := f.paths[category.Name]
	if !ok || path == "" {
		return nil, eris.Errorf("features: no shapefile configured for %s", category.Name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if pts, ok := f.loaded[category.Name]; ok {
		return pts, nil
	}

	pts, err := geo.ReadShapefilePoints(path)
	if err != nil {
		return nil, err
	}
	f.loaded[category.Name] = pts
	return pts, nil
}
