// Package features assembles the environmental feature vector for a
// coordinate from independent data sources, falling back to fixed defaults
// whenever a source cannot answer.
package features

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Feature names, in the order the model was trained on.
const (
	Latitude          = "latitude"
	Longitude         = "longitude"
	DistIndustrial    = "dist_to_nearest_industrial_area_km"
	DistDrainOutfall  = "dist_to_nearest_drain_outfall_km"
	DistLandfill      = "dist_to_nearest_landfill_km"
	DistMajorHighway  = "dist_to_nearest_major_highway_km"
	AnnualPrecip      = "annual_precip_mm"
	PopulationDensity = "population_density_per_km2"
	Elevation         = "elevation_m"
	LandUseEstuary    = "land_use_category_estuary"
	SoilTypeClay      = "soil_type_clay"
)

// SourceInput tags the latitude and longitude values, which come from the
// request itself.
const SourceInput = "input"

var catalogue = []string{
	Latitude,
	Longitude,
	DistIndustrial,
	DistDrainOutfall,
	DistLandfill,
	DistMajorHighway,
	AnnualPrecip,
	PopulationDensity,
	Elevation,
	LandUseEstuary,
	SoilTypeClay,
}

var builtinDefaults = map[string]float64{
	DistIndustrial:    5.0,
	DistDrainOutfall:  2.0,
	DistLandfill:      8.0,
	DistMajorHighway:  3.0,
	AnnualPrecip:      1100.0,
	PopulationDensity: 450.0,
	Elevation:         250.0,
	LandUseEstuary:    0,
	SoilTypeClay:      1,
}

// static features are never fetched; they always take their default.
var static = []string{LandUseEstuary, SoilTypeClay}

// Names returns the feature catalogue in order. It is the column list used
// when a model does not carry its own.
func Names() []string {
	out := make([]string, len(catalogue))
	copy(out, catalogue)
	return out
}

// IsStatic reports whether name is a feature that no source supplies.
func IsStatic(name string) bool {
	for _, s := range static {
		if s == name {
			return true
		}
	}
	return false
}

// Defaults returns the fallback table with overrides applied. Overriding a
// feature that has no fallback (latitude, longitude, unknown names) is an
// error.
func Defaults(overrides map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(builtinDefaults))
	for k, v := range builtinDefaults {
		out[k] = v
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := builtinDefaults[k]; !ok {
			return nil, eris.Errorf("features: no default for %q", k)
		}
		out[k] = overrides[k]
	}
	return out, nil
}
