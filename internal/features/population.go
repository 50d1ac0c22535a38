package features

import (
	"context"
	"sync"

	"github.com/sells-group/hmpi-cli/internal/geo"
	"github.com/sells-group/hmpi-cli/internal/model"
)

// Raster samples a single-band raster at a longitude/latitude.
type Raster interface {
	Sample(ctx context.Context, lon, lat float64) (float64, error)
}

// GridRaster is an ESRI ASCII grid loaded from disk on first use. A load
// failure is remembered and returned by every later Sample.
type GridRaster struct {
	path string

	once sync.Once
	grid *geo.Grid
	err  error
}

// NewGridRaster creates a GridRaster for the .asc file at path.
func NewGridRaster(path string) *GridRaster {
	return &GridRaster{path: path}
}

// Sample implements Raster.
func (r *GridRaster) Sample(_ context.Context, lon, lat float64) (float64, error) {
	r.once.Do(func() {
		r.grid, r.err = geo.LoadGrid(r.path)
	})
	if r.err != nil {
		return 0, r.err
	}
	return r.grid.Sample(lon, lat)
}

// PopulationSource fills population_density_per_km2 from a raster.
type PopulationSource struct {
	name   string
	raster Raster
}

// NewPopulationSource creates a PopulationSource; name labels the backend.
func NewPopulationSource(name string, raster Raster) *PopulationSource {
	return &PopulationSource{name: name, raster: raster}
}

// Name implements Source.
func (s *PopulationSource) Name() string { return s.name }

// Feature implements Source.
func (s *PopulationSource) Feature() string { return PopulationDensity }

// Value implements Source.
func (s *PopulationSource) Value(ctx context.Context, loc model.Location) (float64, error) {
	return checkFinite(s.raster.Sample(ctx, loc.Longitude, loc.Latitude))
}
