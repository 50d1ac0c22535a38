package features

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hmpi-cli/internal/geo"
	"github.com/sells-group/hmpi-cli/internal/resilience"
	"github.com/sells-group/hmpi-cli/pkg/overpass"
)

type fakeOverpass struct {
	elems   []overpass.Element
	err     error
	calls   atomic.Int32
	queries []string
}

func (f *fakeOverpass) Query(_ context.Context, query string) ([]overpass.Element, error) {
	f.calls.Add(1)
	f.queries = append(f.queries, query)
	return f.elems, f.err
}

func fptr(v float64) *float64 { return &v }

func TestCategories(t *testing.T) {
	require.Len(t, Categories, 4)
	c, ok := CategoryByName("major_highway")
	require.True(t, ok)
	assert.Equal(t, DistMajorHighway, c.Feature)
	assert.Equal(t, `["highway"~"motorway|trunk|primary"]`, c.Filter.String())

	_, ok = CategoryByName("airport")
	assert.False(t, ok)
}

func TestNearestSource(t *testing.T) {
	finder := &fakeFinder{pts: []geo.Point{{Lat: 29.6, Lon: 77.2}, {Lat: 28.7, Lon: 77.2}}}
	src := NewNearestSource(Categories[0], finder, nil)

	assert.Equal(t, DistIndustrial, src.Feature())
	assert.Equal(t, "fake", src.Name())

	km, err := src.Value(context.Background(), delhi)
	require.NoError(t, err)
	assert.InDelta(t, 11.1, km, 1e-6)
}

func TestNearestSource_Haversine(t *testing.T) {
	finder := &fakeFinder{pts: []geo.Point{{Lat: 29.6, Lon: 77.2}}}
	km, err := NewNearestSource(Categories[0], finder, geo.HaversineKM).Value(context.Background(), delhi)
	require.NoError(t, err)
	assert.InDelta(t, 111.2, km, 0.1)
}

func TestNearestSource_Errors(t *testing.T) {
	_, err := NewNearestSource(Categories[0], &fakeFinder{}, nil).Value(context.Background(), delhi)
	assert.ErrorIs(t, err, ErrNoFeatures)

	boom := errors.New("boom")
	_, err = NewNearestSource(Categories[0], &fakeFinder{err: boom}, nil).Value(context.Background(), delhi)
	assert.ErrorIs(t, err, boom)
}

func TestOverpassFinder_QueryAndCoordinates(t *testing.T) {
	client := &fakeOverpass{elems: []overpass.Element{
		{Type: "node", ID: 1, Lat: fptr(28.7), Lon: fptr(77.2)},
		{Type: "way", ID: 2, Center: &overpass.Center{Lat: 29.0, Lon: 77.0}},
		{Type: "relation", ID: 3},
	}}
	f := NewOverpassFinder(client, resilience.NewGuard(nil, resilience.DefaultRetryConfig()), nil, "", 15)

	pts, err := f.Candidates(context.Background(), Categories[0], geo.Point{})
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{{Lat: 28.7, Lon: 77.2}, {Lat: 29.0, Lon: 77.0}}, pts)

	require.Len(t, client.queries, 1)
	assert.Contains(t, client.queries[0], `area["ISO3166-1"="IN"][admin_level=2]`)
	assert.Contains(t, client.queries[0], `way["landuse"="industrial"](area.country)`)
	assert.Contains(t, client.queries[0], "out center;")
}

func TestOverpassFinder_NoCoordinates(t *testing.T) {
	client := &fakeOverpass{elems: []overpass.Element{{Type: "relation", ID: 3}}}
	f := NewOverpassFinder(client, resilience.NewGuard(nil, resilience.DefaultRetryConfig()), nil, "IN", 0)

	_, err := f.Candidates(context.Background(), Categories[1], geo.Point{})
	assert.ErrorIs(t, err, ErrNoFeatures)
}

func TestOverpassFinder_Cached(t *testing.T) {
	st := newTestStore(t)
	client := &fakeOverpass{elems: []overpass.Element{{Type: "node", Lat: fptr(28.7), Lon: fptr(77.2)}}}
	f := NewOverpassFinder(client, resilience.NewGuard(nil, resilience.DefaultRetryConfig()), NewCache(st, time.Hour), "IN", 15)

	for range 3 {
		pts, err := f.Candidates(context.Background(), Categories[2], geo.Point{})
		require.NoError(t, err)
		assert.Len(t, pts, 1)
	}
	assert.Equal(t, int32(1), client.calls.Load())

	// A different category is a different cache entry.
	_, err := f.Candidates(context.Background(), Categories[3], geo.Point{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestOverpassFinder_FailuresNotCached(t *testing.T) {
	st := newTestStore(t)
	client := &fakeOverpass{err: errors.New("timeout")}
	f := NewOverpassFinder(client, resilience.NewGuard(nil, resilience.DefaultRetryConfig()), NewCache(st, time.Hour), "IN", 15)

	_, err := f.Candidates(context.Background(), Categories[0], geo.Point{})
	require.Error(t, err)
	_, err = f.Candidates(context.Background(), Categories[0], geo.Point{})
	require.Error(t, err)
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestOverpassFinder_OpenCircuit(t *testing.T) {
	sb := resilience.NewServiceBreakers(resilience.FromCircuitConfig(1, 3600))
	client := &fakeOverpass{err: errors.New("connection reset")}
	f := NewOverpassFinder(client, resilience.NewGuard(sb, resilience.DefaultRetryConfig()), nil, "IN", 15)

	_, err := f.Candidates(context.Background(), Categories[0], geo.Point{})
	require.Error(t, err)

	_, err = f.Candidates(context.Background(), Categories[0], geo.Point{})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(1), client.calls.Load())
}

func writeShapefile(t *testing.T, dir, name string, pts []shp.Point) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 16)}))
	for i := range pts {
		n := w.Write(&pts[i])
		require.NoError(t, w.WriteAttribute(int(n), 0, name))
	}
	w.Close()
	return path
}

func TestShapefileFinder(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "landfill", []shp.Point{{X: 77.3, Y: 28.5}, {X: 77.0, Y: 28.0}})

	f := NewShapefileFinder(map[string]string{"landfill": path})
	assert.Equal(t, []string{"landfill"}, f.Categories())

	c, _ := CategoryByName("landfill")
	pts, err := f.Candidates(context.Background(), c, geo.Point{})
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{{Lat: 28.5, Lon: 77.3}, {Lat: 28.0, Lon: 77.0}}, pts)

	// Points stay in memory after the first read.
	require.NoError(t, os.Remove(path))
	pts, err = f.Candidates(context.Background(), c, geo.Point{})
	require.NoError(t, err)
	assert.Len(t, pts, 2)
}

func TestShapefileFinder_Errors(t *testing.T) {
	f := NewShapefileFinder(map[string]string{"industrial": filepath.Join(t.TempDir(), "missing.shp")})

	_, err := f.Candidates(context.Background(), Categories[0], geo.Point{})
	assert.Error(t, err)

	_, err = f.Candidates(context.Background(), Categories[1], geo.Point{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no shapefile configured")
}
