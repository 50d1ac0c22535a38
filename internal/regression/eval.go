package regression

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
)

// Model is a validated, immutable regression model. It is safe for
// concurrent use.
type Model struct {
	kind      Kind
	columns   []string
	trees     []Tree
	coef      []float64
	intercept float64
	metadata  map[string]string
	path      string
}

// Info summarises a loaded model.
type Info struct {
	Kind     Kind              `json:"kind"`
	Columns  []string          `json:"columns"`
	Trees    int               `json:"trees,omitempty"`
	Path     string            `json:"path,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// New validates f and builds a Model.
func New(f File) (*Model, error) {
	if len(f.Columns) == 0 {
		return nil, eris.New("regression: model has no columns")
	}
	seen := make(map[string]bool, len(f.Columns))
	for _, c := range f.Columns {
		if c == "" || seen[c] {
			return nil, eris.Errorf("regression: empty or duplicate column %q", c)
		}
		seen[c] = true
	}

	m := &Model{
		kind:     f.Kind,
		columns:  slices.Clone(f.Columns),
		metadata: f.Metadata,
	}

	switch f.Kind {
	case KindRandomForest:
		if len(f.Trees) == 0 {
			return nil, eris.New("regression: random forest has no trees")
		}
		for i, t := range f.Trees {
			if err := t.validate(len(f.Columns)); err != nil {
				return nil, eris.Wrapf(err, "regression: tree %d", i)
			}
		}
		m.trees = f.Trees
	case KindLinear:
		index := make(map[string]int, len(f.Columns))
		for i, c := range f.Columns {
			index[c] = i
		}
		m.coef = make([]float64, len(f.Columns))
		for name, c := range f.Coefficients {
			i, ok := index[name]
			if !ok {
				return nil, eris.Errorf("regression: coefficient for unknown column %q", name)
			}
			m.coef[i] = c
		}
		m.intercept = f.Intercept
	default:
		return nil, eris.Errorf("regression: unsupported model kind %q", f.Kind)
	}
	return m, nil
}

func (t Tree) validate(numCols int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return eris.New("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return eris.Errorf("array lengths differ (children_left has %d nodes)", n)
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf || r == leaf {
			if l != r {
				return eris.Errorf("node %d has one child", i)
			}
			continue
		}
		// Children always follow their parent in the exported layout, which
		// also rules out cycles.
		if l <= i || l >= n || r <= i || r >= n {
			return eris.Errorf("node %d has child out of range (%d, %d)", i, l, r)
		}
		if f := t.Feature[i]; f < 0 || f >= numCols {
			return eris.Errorf("node %d splits on feature %d, model has %d columns", i, f, numCols)
		}
		if math.IsNaN(t.Threshold[i]) {
			return eris.Errorf("node %d has NaN threshold", i)
		}
	}
	return nil
}

func (t Tree) predict(x []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// Predict evaluates the model on x, which must follow Columns order.
func (m *Model) Predict(x []float64) (float64, error) {
	if len(x) != len(m.columns) {
		return 0, eris.Errorf("regression: vector has %d values, model expects %d", len(x), len(m.columns))
	}

	switch m.kind {
	case KindRandomForest:
		var sum float64
		for _, t := range m.trees {
			sum += t.predict(x)
		}
		return sum / float64(len(m.trees)), nil
	default:
		y := m.intercept
		for i, c := range m.coef {
			y += c * x[i]
		}
		return y, nil
	}
}

// Columns returns a copy of the model's feature column order.
func (m *Model) Columns() []string {
	return slices.Clone(m.columns)
}

// Kind returns the model family.
func (m *Model) Kind() Kind {
	return m.kind
}

// Info describes the model for the API and CLI.
func (m *Model) Info() Info {
	return Info{
		Kind:     m.kind,
		Columns:  m.Columns(),
		Trees:    len(m.trees),
		Path:     m.path,
		Metadata: m.metadata,
	}
}
