package features

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hmpi-cli/internal/model"
)

// Source supplies the value of one feature for a location.
type Source interface {
	// Name identifies the backend, e.g. "overpass" or "elevation".
	Name() string
	// Feature is the catalogue name this source fills.
	Feature() string
	// Value fetches the feature value at loc.
	Value(ctx context.Context, loc model.Location) (float64, error)
}

// checkFinite rejects NaN and infinite source answers.
func checkFinite(v float64, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("features: non-finite value %v", v)
	}
	return v, nil
}
