package features

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/hmpi-cli/internal/geo"
	"github.com/sells-group/hmpi-cli/internal/model"
	"github.com/sells-group/hmpi-cli/internal/store"
)

type fakeSource struct {
	name    string
	feature string
	value   float64
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) Feature() string { return f.feature }

func (f *fakeSource) Value(ctx context.Context, _ model.Location) (float64, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.value, f.err
}

type fakeFinder struct {
	pts []geo.Point
	err error
}

func (f *fakeFinder) Name() string { return "fake" }

func (f *fakeFinder) Candidates(context.Context, Category, geo.Point) ([]geo.Point, error) {
	return f.pts, f.err
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var delhi = model.Location{Latitude: 28.6, Longitude: 77.2}
