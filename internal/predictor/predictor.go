// Package predictor turns a coordinate or a raw feature record into a
// persisted HMPI prediction.
package predictor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hmpi-cli/internal/features"
	"github.com/sells-group/hmpi-cli/internal/model"
	"github.com/sells-group/hmpi-cli/internal/regression"
	"github.com/sells-group/hmpi-cli/internal/store"
)

// ErrModelUnavailable is returned when no regression model is loaded.
var ErrModelUnavailable = eris.New("predictor: model not loaded")

// ErrHistoryDisabled is returned by Get and List when no store is configured.
var ErrHistoryDisabled = eris.New("predictor: prediction history is disabled")

// Regressor is a loaded regression model.
type Regressor interface {
	Predict(x []float64) (float64, error)
	Columns() []string
	Kind() regression.Kind
	Info() regression.Info
}

// FeatureBuilder assembles the features of a location.
type FeatureBuilder interface {
	Build(ctx context.Context, loc model.Location) *model.FeatureSet
}

// Service runs predictions. The model and the store may be nil: without a
// model every prediction fails with ErrModelUnavailable, without a store
// nothing is persisted.
type Service struct {
	model   Regressor
	builder FeatureBuilder
	store   store.Store
	nowFunc func() time.Time
}

// New creates a Service.
func New(m Regressor, b FeatureBuilder, st store.Store) *Service {
	s := &Service{builder: b, store: st, nowFunc: time.Now}
	// Keep a typed-nil *regression.Model from looking loaded.
	if rm, ok := m.(*regression.Model); !ok || rm != nil {
		s.model = m
	}
	return s
}

// ModelInfo describes the loaded model; ok is false when none is loaded.
func (s *Service) ModelInfo() (regression.Info, bool) {
	if s.model == nil {
		return regression.Info{}, false
	}
	return s.model.Info(), true
}

// Columns returns the model's feature columns, or the feature catalogue when
// no model is loaded.
func (s *Service) Columns() []string {
	if s.model == nil {
		return features.Names()
	}
	return s.model.Columns()
}

// Ready reports whether the service can serve predictions.
func (s *Service) Ready(ctx context.Context) error {
	if s.model == nil {
		return ErrModelUnavailable
	}
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			return eris.Wrap(err, "predictor: store not ready")
		}
	}
	return nil
}

// Features validates loc and assembles its feature set.
func (s *Service) Features(ctx context.Context, lat, lon float64) (*model.FeatureSet, error) {
	loc := model.Location{Latitude: lat, Longitude: lon}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return s.builder.Build(ctx, loc), nil
}

// PredictLocation predicts the HMPI at a coordinate from fetched features.
func (s *Service) PredictLocation(ctx context.Context, lat, lon float64) (*model.Prediction, error) {
	if s.model == nil {
		return nil, ErrModelUnavailable
	}
	fs, err := s.Features(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	raw, err := s.model.Predict(features.Vector(fs, s.model.Columns()))
	if err != nil {
		return nil, eris.Wrap(err, "predictor: predict location")
	}

	loc := fs.Location
	p := &model.Prediction{
		Kind:      model.PredictionKindLocation,
		Location:  &loc,
		Features:  fs.Values,
		Sources:   fs.Sources,
		Fallbacks: fs.Fallbacks,
		HMPI:      model.RoundHMPI(raw),
		RawHMPI:   raw,
		ModelKind: string(s.model.Kind()),
		CreatedAt: s.nowFunc().UTC(),
	}
	s.persist(ctx, p)
	return p, nil
}

// PredictRecord predicts from a caller-supplied feature record, one-hot
// encoding string values the way the model's columns expect.
func (s *Service) PredictRecord(ctx context.Context, record map[string]any) (*model.Prediction, error) {
	if s.model == nil {
		return nil, ErrModelUnavailable
	}
	columns := s.model.Columns()
	x, err := features.Encode(record, columns)
	if err != nil {
		return nil, err
	}

	raw, err := s.model.Predict(x)
	if err != nil {
		return nil, eris.Wrap(err, "predictor: predict record")
	}

	values := make(map[string]float64, len(columns))
	for i, c := range columns {
		values[c] = x[i]
	}
	p := &model.Prediction{
		Kind:      model.PredictionKindRecord,
		Features:  values,
		HMPI:      model.RoundHMPI(raw),
		RawHMPI:   raw,
		ModelKind: string(s.model.Kind()),
		CreatedAt: s.nowFunc().UTC(),
	}
	s.persist(ctx, p)
	return p, nil
}

// persist saves p when a store is configured. A failed save is logged and
// does not fail the prediction. p carries an ID only once it is stored, so
// every ID handed back can be fetched again.
func (s *Service) persist(ctx context.Context, p *model.Prediction) {
	if s.store == nil {
		return
	}
	p.ID = uuid.New().String()
	if err := s.store.SavePrediction(ctx, p); err != nil {
		zap.L().Warn("predictor: failed to save prediction",
			zap.String("kind", string(p.Kind)),
			zap.String("id", p.ID),
			zap.Error(err),
		)
		p.ID = ""
	}
}

// Get returns a stored prediction.
func (s *Service) Get(ctx context.Context, id string) (*model.Prediction, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.GetPrediction(ctx, id)
}

// List returns stored predictions, newest first.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]model.Prediction, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.ListPredictions(ctx, filter)
}
