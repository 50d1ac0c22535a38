package features

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hmpi-cli/internal/config"
	"github.com/sells-group/hmpi-cli/internal/db"
	"github.com/sells-group/hmpi-cli/internal/geo"
	"github.com/sells-group/hmpi-cli/internal/resilience"
	"github.com/sells-group/hmpi-cli/internal/store"
	"github.com/sells-group/hmpi-cli/pkg/elevation"
	"github.com/sells-group/hmpi-cli/pkg/nasapower"
	"github.com/sells-group/hmpi-cli/pkg/overpass"
)

// Deps are the shared resources sources are built from. Pool is required
// only for the postgis backends; Store may be nil.
type Deps struct {
	Store store.Store
	Pool  db.Pool
	Guard *resilience.Guard
}

// NewBuilderFromConfig wires the configured sources into a Builder.
func NewBuilderFromConfig(cfg *config.Config, deps Deps) (*Builder, error) {
	defaults, err := Defaults(cfg.Features.Defaults)
	if err != nil {
		return nil, err
	}
	sources, err := NewSources(cfg, deps)
	if err != nil {
		return nil, err
	}
	return NewBuilder(defaults, sources...), nil
}

// NewSources builds one Source per fetched feature.
func NewSources(cfg *config.Config, deps Deps) ([]Source, error) {
	guard := deps.Guard
	if guard == nil {
		guard = resilience.NewGuard(nil, resilience.DefaultRetryConfig())
	}

	var areaCache, pointCache *Cache
	if cfg.Cache.Enabled {
		areaCache = NewCache(deps.Store, time.Duration(cfg.Cache.OverpassTTLHours)*time.Hour)
		pointCache = NewCache(deps.Store, time.Duration(cfg.Cache.PointTTLHours)*time.Hour)
	}

	dist, err := geo.DistanceByName(cfg.Features.DistanceMetric)
	if err != nil {
		return nil, err
	}

	var finder PointFinder
	switch cfg.Sources.Nearest.Backend {
	case "", "overpass":
		oc := cfg.Sources.Overpass
		client := overpass.NewClient(
			overpass.WithBaseURL(oc.BaseURL),
			overpass.WithTimeout(secs(oc.TimeoutSecs)),
			overpass.WithRateLimit(oc.RateLimit),
		)
		finder = NewOverpassFinder(client, guard, areaCache, oc.Country, oc.TimeoutSecs)
	case "shapefile":
		finder = NewShapefileFinder(cfg.Sources.Nearest.Shapefiles)
	case "postgis":
		if deps.Pool == nil {
			return nil, eris.New("features: postgis nearest backend needs a postgres pool")
		}
		finder = NewPostGISFinder(deps.Pool, cfg.Sources.Nearest.Table)
	default:
		return nil, eris.Errorf("features: unknown nearest backend %q", cfg.Sources.Nearest.Backend)
	}

	sources := make([]Source, 0, len(Categories)+3)
	for _, c := range Categories {
		sources = append(sources, NewNearestSource(c, finder, dist))
	}

	rc := cfg.Sources.Rainfall
	sources = append(sources, NewRainfallSource(
		nasapower.NewClient(
			nasapower.WithBaseURL(rc.BaseURL),
			nasapower.WithCommunity(rc.Community),
			nasapower.WithTimeout(secs(rc.TimeoutSecs)),
			nasapower.WithRateLimit(rc.RateLimit),
		),
		guard, pointCache, rc.Parameter, rc.Scale,
	))

	pc := cfg.Sources.Population
	switch pc.Backend {
	case "", "ascii":
		sources = append(sources, NewPopulationSource("raster", NewGridRaster(pc.RasterPath)))
	case "postgis":
		if deps.Pool == nil {
			return nil, eris.New("features: postgis population backend needs a postgres pool")
		}
		sources = append(sources, NewPopulationSource("postgis", NewPostGISRaster(deps.Pool, pc.Table)))
	default:
		return nil, eris.Errorf("features: unknown population backend %q", pc.Backend)
	}

	ec := cfg.Sources.Elevation
	sources = append(sources, NewElevationSource(
		elevation.NewClient(
			elevation.WithBaseURL(ec.BaseURL),
			elevation.WithTimeout(secs(ec.TimeoutSecs)),
			elevation.WithRateLimit(ec.RateLimit),
		),
		guard, pointCache,
	))

	return sources, nil
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
