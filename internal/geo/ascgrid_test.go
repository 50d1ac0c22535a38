package geo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGrid = `ncols 3
nrows 2
xllcorner 70.0
yllcorner 20.0
cellsize 1.0
NODATA_value -9999
10 20 30
40 -9999 60
`

func TestParseGrid(t *testing.T) {
	g, err := ParseGrid(strings.NewReader(sampleGrid))
	require.NoError(t, err)

	assert.Equal(t, 3, g.Cols)
	assert.Equal(t, 2, g.Rows)
	assert.True(t, g.HasNoData)

	tests := []struct {
		name     string
		lon, lat float64
		want     float64
	}{
		{"top left", 70.5, 21.5, 10},
		{"top right", 72.5, 21.5, 30},
		{"bottom left", 70.5, 20.5, 40},
		{"bottom right", 72.9, 20.1, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := g.Sample(tt.lon, tt.lat)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, v, 1e-6)
		})
	}
}

func TestGridSample_NoDataAndOutside(t *testing.T) {
	g, err := ParseGrid(strings.NewReader(sampleGrid))
	require.NoError(t, err)

	_, err = g.Sample(71.5, 20.5)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = g.Sample(69.9, 20.5)
	assert.ErrorIs(t, err, ErrOutsideGrid)

	_, err = g.Sample(70.5, 22.5)
	assert.ErrorIs(t, err, ErrOutsideGrid)
}

func TestParseGrid_CenterOrigin(t *testing.T) {
	src := "ncols 1\nnrows 1\nxllcenter 0.5\nyllcenter 0.5\ncellsize 1\n7\n"
	g, err := ParseGrid(strings.NewReader(src))
	require.NoError(t, err)

	assert.InDelta(t, 0.0, g.XLL, 1e-12)
	v, err := g.Sample(0.2, 0.8)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, v, 1e-6)
}

func TestParseGrid_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"short body", "ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n"},
		{"bad header", "ncols 2\nbogus 1\n"},
		{"missing cellsize", "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\n1\n"},
		{"bad cell", "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nx\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGrid(strings.NewReader(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestParseGrid_OversizedHeader(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"huge ncols", "ncols 1e12\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n", "out of range"},
		{"fractional nrows", "ncols 2\nnrows 2.5\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n", "out of range"},
		{"negative ncols", "ncols -4\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n", "out of range"},
		{"product over limit", "ncols 100000\nnrows 100000\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n", "cell limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGrid(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGridSample_SentinelsSurviveWrapping(t *testing.T) {
	g, err := ParseGrid(strings.NewReader(sampleGrid))
	require.NoError(t, err)

	_, err = g.Sample(-10, -10)
	assert.ErrorIs(t, eris.Wrap(err, "population: sample"), ErrOutsideGrid)
}

func TestLoadGrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pop.asc")
	require.NoError(t, os.WriteFile(path, []byte(sampleGrid), 0o644))

	g, err := LoadGrid(path)
	require.NoError(t, err)
	v, err := g.Sample(70.5, 21.5)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v, 1e-6)

	_, err = LoadGrid(filepath.Join(t.TempDir(), "missing.asc"))
	assert.Error(t, err)
}
