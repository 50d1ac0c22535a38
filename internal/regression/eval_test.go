package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stump splits column 0 at 10: left leaf 100, right leaf 200.
func stump() Tree {
	return Tree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{0, -2, -2},
		Threshold:     []float64{10, -2, -2},
		Value:         []float64{150, 100, 200},
	}
}

// deeper splits column 1 at 0.5, then column 0 at 5 on the right.
func deeper() Tree {
	return Tree{
		ChildrenLeft:  []int{1, -1, 3, -1, -1},
		ChildrenRight: []int{2, -1, 4, -1, -1},
		Feature:       []int{1, -2, 0, -2, -2},
		Threshold:     []float64{0.5, -2, 5, -2, -2},
		Value:         []float64{0, 10, 0, 20, 30},
	}
}

func TestRandomForest_Predict(t *testing.T) {
	m, err := New(File{Kind: KindRandomForest, Columns: []string{"a", "b"}, Trees: []Tree{stump(), deeper()}})
	require.NoError(t, err)

	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"left left", []float64{1, 0}, (100 + 10) / 2.0},
		{"threshold goes left", []float64{10, 0.5}, (100 + 10) / 2.0},
		{"right, deep left", []float64{11, 1}, (200 + 30) / 2.0},
		{"left, deep right", []float64{4, 1}, (100 + 20) / 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Predict(tt.x)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestLinear_Predict(t *testing.T) {
	m, err := New(File{
		Kind:         KindLinear,
		Columns:      []string{"elevation_m", "annual_precip_mm", "soil_type_clay"},
		Intercept:    50,
		Coefficients: map[string]float64{"elevation_m": -0.1, "annual_precip_mm": 0.02},
	})
	require.NoError(t, err)

	got, err := m.Predict([]float64{250, 1100, 1})
	require.NoError(t, err)
	assert.InDelta(t, 50-25+22, got, 1e-9)
}

func TestPredict_WrongLength(t *testing.T) {
	m, err := New(File{Kind: KindLinear, Columns: []string{"a", "b"}})
	require.NoError(t, err)

	_, err = m.Predict([]float64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector has 1 values, model expects 2")
}

func TestNew_Validation(t *testing.T) {
	bad := stump()
	bad.Value = bad.Value[:2]

	oneChild := stump()
	oneChild.ChildrenRight[0] = -1

	backwards := deeper()
	backwards.ChildrenLeft[2] = 1

	outOfRange := stump()
	outOfRange.ChildrenRight[0] = 7

	badFeature := stump()
	badFeature.Feature[0] = 3

	tests := []struct {
		name     string
		file     File
		contains string
	}{
		{"no columns", File{Kind: KindLinear}, "no columns"},
		{"duplicate column", File{Kind: KindLinear, Columns: []string{"a", "a"}}, "duplicate column"},
		{"unknown kind", File{Kind: "svm", Columns: []string{"a"}}, "unsupported model kind"},
		{"no trees", File{Kind: KindRandomForest, Columns: []string{"a"}}, "no trees"},
		{"length mismatch", File{Kind: KindRandomForest, Columns: []string{"a"}, Trees: []Tree{bad}}, "array lengths differ"},
		{"one child", File{Kind: KindRandomForest, Columns: []string{"a"}, Trees: []Tree{oneChild}}, "one child"},
		{"backwards child", File{Kind: KindRandomForest, Columns: []string{"a", "b"}, Trees: []Tree{backwards}}, "out of range"},
		{"child out of range", File{Kind: KindRandomForest, Columns: []string{"a"}, Trees: []Tree{outOfRange}}, "out of range"},
		{"feature out of range", File{Kind: KindRandomForest, Columns: []string{"a"}, Trees: []Tree{badFeature}}, "splits on feature 3"},
		{"unknown coefficient", File{Kind: KindLinear, Columns: []string{"a"}, Coefficients: map[string]float64{"z": 1}}, "unknown column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestInfo(t *testing.T) {
	m, err := New(File{
		Kind:     KindRandomForest,
		Columns:  []string{"a", "b"},
		Trees:    []Tree{stump(), deeper()},
		Metadata: map[string]string{"trained_on": "india_groundwater"},
	})
	require.NoError(t, err)

	info := m.Info()
	assert.Equal(t, KindRandomForest, info.Kind)
	assert.Equal(t, []string{"a", "b"}, info.Columns)
	assert.Equal(t, 2, info.Trees)
	assert.Equal(t, "india_groundwater", info.Metadata["trained_on"])

	cols := m.Columns()
	cols[0] = "mutated"
	assert.Equal(t, "a", m.Columns()[0])
}
