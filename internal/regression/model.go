// Package regression evaluates regression models exported from the offline
// training job. Two model kinds are supported: a random forest in the
// scikit-learn tree-array layout and a plain linear model.
package regression

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Kind names a model family.
type Kind string

const (
	// KindRandomForest averages the outputs of regression trees.
	KindRandomForest Kind = "random_forest"
	// KindLinear is intercept + Σ coefficient·x.
	KindLinear Kind = "linear"
)

// leaf marks a missing child in the tree arrays.
const leaf = -1

// Tree is one fitted regression tree. Node i is a leaf when
// ChildrenLeft[i] == -1; otherwise samples with x[Feature[i]] <= Threshold[i]
// go to ChildrenLeft[i].
type Tree struct {
	ChildrenLeft  []int     `json:"children_left" yaml:"children_left"`
	ChildrenRight []int     `json:"children_right" yaml:"children_right"`
	Feature       []int     `json:"feature" yaml:"feature"`
	Threshold     []float64 `json:"threshold" yaml:"threshold"`
	Value         []float64 `json:"value" yaml:"value"`
}

// File is the on-disk model document.
type File struct {
	Kind         Kind               `json:"kind" yaml:"kind"`
	Columns      []string           `json:"columns,omitempty" yaml:"columns,omitempty"`
	Trees        []Tree             `json:"trees,omitempty" yaml:"trees,omitempty"`
	Intercept    float64            `json:"intercept,omitempty" yaml:"intercept,omitempty"`
	Coefficients map[string]float64 `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// LoadOptions controls how the column list is resolved.
type LoadOptions struct {
	// ColumnsPath is an optional JSON array of column names that replaces
	// the list embedded in the model file.
	ColumnsPath string
	// DefaultColumns is used when neither the file nor ColumnsPath names
	// the columns.
	DefaultColumns []string
}

// Load reads and validates a model file. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
func Load(path string, opts LoadOptions) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "regression: read %s", path)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "regression: decode %s", path)
	}

	if opts.ColumnsPath != "" {
		cols, err := readColumns(opts.ColumnsPath)
		if err != nil {
			return nil, err
		}
		f.Columns = cols
	}
	if len(f.Columns) == 0 {
		f.Columns = opts.DefaultColumns
	}

	m, err := New(f)
	if err != nil {
		return nil, eris.Wrapf(err, "regression: load %s", path)
	}
	m.path = path
	return m, nil
}

func readColumns(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "regression: read columns %s", path)
	}
	var cols []string
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, eris.Wrapf(err, "regression: decode columns %s", path)
	}
	return cols, nil
}
