package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hmpi-cli/internal/features"
	"github.com/sells-group/hmpi-cli/internal/model"
	"github.com/sells-group/hmpi-cli/internal/regression"
	"github.com/sells-group/hmpi-cli/internal/store"
)

// staticBuilder returns a fixed elevation and the coordinates.
type staticBuilder struct {
	elevation float64
	calls     int
}

func (b *staticBuilder) Build(_ context.Context, loc model.Location) *model.FeatureSet {
	b.calls++
	fs := model.NewFeatureSet(loc)
	fs.Set(features.Latitude, loc.Latitude, features.SourceInput)
	fs.Set(features.Longitude, loc.Longitude, features.SourceInput)
	fs.Set(features.Elevation, b.elevation, "elevation")
	fs.Set(features.AnnualPrecip, 1100, model.SourceDefault)
	fs.Fallbacks = []model.Fallback{{Feature: features.AnnualPrecip, Source: "rainfall", Reason: "timeout"}}
	return fs
}

// linearModel predicts 10 + 0.1·elevation_m + 2·soil_type_clay.
func linearModel(t *testing.T) *regression.Model {
	t.Helper()
	m, err := regression.New(regression.File{
		Kind:         regression.KindLinear,
		Columns:      []string{features.Elevation, "soil_type_clay", features.Latitude},
		Intercept:    10,
		Coefficients: map[string]float64{features.Elevation: 0.1, "soil_type_clay": 2},
	})
	require.NoError(t, err)
	return m
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "hmpi.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPredictLocation(t *testing.T) {
	st := newTestStore(t)
	svc := New(linearModel(t), &staticBuilder{elevation: 216.333}, st)
	svc.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	p, err := svc.PredictLocation(context.Background(), 28.6, 77.2)
	require.NoError(t, err)

	assert.Equal(t, model.PredictionKindLocation, p.Kind)
	assert.InDelta(t, 31.6333, p.RawHMPI, 1e-9)
	assert.Equal(t, 31.63, p.HMPI)
	assert.Equal(t, "linear", p.ModelKind)
	require.NotNil(t, p.Location)
	assert.Equal(t, 28.6, p.Location.Latitude)
	assert.Equal(t, "elevation", p.Sources[features.Elevation])
	assert.Len(t, p.Fallbacks, 1)
	assert.NotEmpty(t, p.ID)

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.HMPI, got.HMPI)
	assert.Equal(t, p.Fallbacks, got.Fallbacks)
}

func TestPredictLocation_InvalidCoordinates(t *testing.T) {
	b := &staticBuilder{}
	svc := New(linearModel(t), b, nil)

	_, err := svc.PredictLocation(context.Background(), 91, 0)
	require.Error(t, err)
	_, err = svc.PredictLocation(context.Background(), 0, -181)
	require.Error(t, err)
	assert.Equal(t, 0, b.calls)
}

func TestPredict_NoModel(t *testing.T) {
	var m *regression.Model
	svc := New(m, &staticBuilder{}, nil)

	_, err := svc.PredictLocation(context.Background(), 28.6, 77.2)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	_, err = svc.PredictRecord(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, ok := svc.ModelInfo()
	assert.False(t, ok)
	assert.Equal(t, features.Names(), svc.Columns())
	assert.ErrorIs(t, svc.Ready(context.Background()), ErrModelUnavailable)

	// Features still work without a model.
	fs, err := svc.Features(context.Background(), 28.6, 77.2)
	require.NoError(t, err)
	assert.Equal(t, 28.6, fs.Values[features.Latitude])
}

func TestPredictRecord(t *testing.T) {
	st := newTestStore(t)
	svc := New(linearModel(t), &staticBuilder{}, st)

	p, err := svc.PredictRecord(context.Background(), map[string]any{
		"elevation_m": 100.0,
		"soil_type":   "clay",
		"ignored":     "value",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PredictionKindRecord, p.Kind)
	assert.Equal(t, 22.0, p.HMPI)
	assert.Nil(t, p.Location)
	assert.Equal(t, map[string]float64{"elevation_m": 100, "soil_type_clay": 1, "latitude": 0}, p.Features)

	list, err := svc.List(context.Background(), store.ListFilter{Kind: model.PredictionKindRecord})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
}

func TestPredictRecord_EncodeError(t *testing.T) {
	svc := New(linearModel(t), &staticBuilder{}, nil)
	_, err := svc.PredictRecord(context.Background(), map[string]any{"a": []any{1}})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrModelUnavailable))
}

func TestHistoryDisabled(t *testing.T) {
	svc := New(linearModel(t), &staticBuilder{}, nil)

	p, err := svc.PredictLocation(context.Background(), 28.6, 77.2)
	require.NoError(t, err)
	assert.Empty(t, p.ID)

	_, err = svc.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	_, err = svc.List(context.Background(), store.ListFilter{})
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

// failingStore rejects every save.
type failingStore struct {
	store.Store
	saves int
}

func (f *failingStore) SavePrediction(_ context.Context, _ *model.Prediction) error {
	f.saves++
	return errors.New("database is locked")
}

func TestPersist_FailedSaveClearsID(t *testing.T) {
	st := &failingStore{Store: newTestStore(t)}
	svc := New(linearModel(t), &staticBuilder{elevation: 100}, st)

	p, err := svc.PredictLocation(context.Background(), 28.6, 77.2)
	require.NoError(t, err, "a failed save does not fail the prediction")
	assert.Equal(t, 1, st.saves)
	assert.Empty(t, p.ID)

	p, err = svc.PredictRecord(context.Background(), map[string]any{features.Elevation: 10.0})
	require.NoError(t, err)
	assert.Empty(t, p.ID)
}

func TestPersist_IDOnlyWhenStored(t *testing.T) {
	svc := New(linearModel(t), &staticBuilder{}, nil)
	p, err := svc.PredictLocation(context.Background(), 28.6, 77.2)
	require.NoError(t, err)
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"id"`)

	svc = New(linearModel(t), &staticBuilder{}, newTestStore(t))
	p, err = svc.PredictLocation(context.Background(), 28.6, 77.2)
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestGet_NotFound(t *testing.T) {
	svc := New(linearModel(t), &staticBuilder{}, newTestStore(t))
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReady(t *testing.T) {
	svc := New(linearModel(t), &staticBuilder{}, newTestStore(t))
	assert.NoError(t, svc.Ready(context.Background()))

	info, ok := svc.ModelInfo()
	require.True(t, ok)
	assert.Equal(t, regression.KindLinear, info.Kind)
}
