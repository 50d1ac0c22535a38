// Package model defines the domain types shared by the feature pipeline,
// the predictor, the store and the HTTP front end.
package model

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// Location is a WGS84 coordinate in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects non-finite and out-of-range coordinates.
func (l Location) Validate() error {
	if math.IsNaN(l.Latitude) || math.IsInf(l.Latitude, 0) || l.Latitude < -90 || l.Latitude > 90 {
		return eris.Errorf("model: latitude %v out of range [-90, 90]", l.Latitude)
	}
	if math.IsNaN(l.Longitude) || math.IsInf(l.Longitude, 0) || l.Longitude < -180 || l.Longitude > 180 {
		return eris.Errorf("model: longitude %v out of range [-180, 180]", l.Longitude)
	}
	return nil
}

// SourceDefault marks a feature value that came from the fallback table.
const SourceDefault = "default"

// SourceStatic marks a feature that is never fetched.
const SourceStatic = "static"

// Fallback records why a source could not supply a feature.
type Fallback struct {
	Feature string `json:"feature"`
	Source  string `json:"source"`
	Reason  string `json:"reason"`
}

// FeatureSet is the assembled environmental context for one location.
// Values is keyed by feature name; Sources names where each value came from.
type FeatureSet struct {
	Location  Location           `json:"location"`
	Values    map[string]float64 `json:"values"`
	Sources   map[string]string  `json:"sources"`
	Fallbacks []Fallback         `json:"fallbacks,omitempty"`
}

// NewFeatureSet returns an empty FeatureSet for loc.
func NewFeatureSet(loc Location) *FeatureSet {
	return &FeatureSet{
		Location: loc,
		Values:   make(map[string]float64),
		Sources:  make(map[string]string),
	}
}

// Set stores a value and its origin.
func (fs *FeatureSet) Set(name string, value float64, source string) {
	fs.Values[name] = value
	fs.Sources[name] = source
}

// DefaultedCount returns how many values were substituted from the fallback table.
func (fs *FeatureSet) DefaultedCount() int {
	n := 0
	for _, src := range fs.Sources {
		if src == SourceDefault {
			n++
		}
	}
	return n
}

// PredictionKind distinguishes how a prediction's features were obtained.
type PredictionKind string

const (
	// PredictionKindLocation means features were assembled from a coordinate.
	PredictionKindLocation PredictionKind = "location"
	// PredictionKindRecord means the caller supplied the feature record.
	PredictionKindRecord PredictionKind = "record"
)

// Prediction is one model evaluation and the inputs that produced it.
type Prediction struct {
	ID        string             `json:"id,omitempty"`
	Kind      PredictionKind     `json:"kind"`
	Location  *Location          `json:"location,omitempty"`
	Features  map[string]float64 `json:"features"`
	Sources   map[string]string  `json:"sources,omitempty"`
	Fallbacks []Fallback         `json:"fallbacks,omitempty"`
	HMPI      float64            `json:"predicted_hmpi"`
	RawHMPI   float64            `json:"raw_hmpi"`
	ModelKind string             `json:"model_kind"`
	CreatedAt time.Time          `json:"created_at"`
}

// RoundHMPI rounds a model output to two decimals for reporting.
func RoundHMPI(v float64) float64 {
	return math.Round(v*100) / 100
}
