package features

import (
	"context"

	"github.com/sells-group/hmpi-cli/internal/model"
	"github.com/sells-group/hmpi-cli/internal/resilience"
	"github.com/sells-group/hmpi-cli/pkg/elevation"
	"github.com/sells-group/hmpi-cli/pkg/nasapower"
)

// ElevationSource reads elevation_m from Open-Elevation.
type ElevationSource struct {
	client elevation.Client
	guard  *resilience.Guard
	cache  *Cache
}

// NewElevationSource creates an ElevationSource. cache may be nil.
func NewElevationSource(client elevation.Client, guard *resilience.Guard, cache *Cache) *ElevationSource {
	return &ElevationSource{client: client, guard: guard, cache: cache}
}

// Name implements Source.
func (s *ElevationSource) Name() string { return "elevation" }

// Feature implements Source.
func (s *ElevationSource) Feature() string { return Elevation }

// Value implements Source.
func (s *ElevationSource) Value(ctx context.Context, loc model.Location) (float64, error) {
	return checkFinite(cached(ctx, s.cache, s.Name(), PointKey(loc), func(ctx context.Context) (float64, error) {
		return resilience.Call(ctx, s.guard, s.Name(), "lookup", func(ctx context.Context) (float64, error) {
			return s.client.Lookup(ctx, loc.Latitude, loc.Longitude)
		})
	}))
}

// RainfallSource reads annual_precip_mm from the NASA POWER climatology.
// The annual value is multiplied by scale, 365 for a mm/day parameter.
type RainfallSource struct {
	client    nasapower.Client
	guard     *resilience.Guard
	cache     *Cache
	parameter string
	scale     float64
}

// NewRainfallSource creates a RainfallSource. An empty parameter means
// PRECTOTCORR and a zero scale means 365.
func NewRainfallSource(client nasapower.Client, guard *resilience.Guard, cache *Cache, parameter string, scale float64) *RainfallSource {
	if parameter == "" {
		parameter = nasapower.ParamPrecipitation
	}
	if scale == 0 {
		scale = 365
	}
	return &RainfallSource{client: client, guard: guard, cache: cache, parameter: parameter, scale: scale}
}

// Name implements Source.
func (s *RainfallSource) Name() string { return "rainfall" }

// Feature implements Source.
func (s *RainfallSource) Feature() string { return AnnualPrecip }

// Value implements Source.
func (s *RainfallSource) Value(ctx context.Context, loc model.Location) (float64, error) {
	key := s.parameter + ":" + PointKey(loc)
	ann, err := cached(ctx, s.cache, s.Name(), key, func(ctx context.Context) (float64, error) {
		return resilience.Call(ctx, s.guard, s.Name(), "climatology", func(ctx context.Context) (float64, error) {
			return s.client.Annual(ctx, s.parameter, loc.Latitude, loc.Longitude)
		})
	})
	if err != nil {
		return 0, err
	}
	return checkFinite(ann*s.scale, nil)
}
