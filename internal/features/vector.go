package features

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hmpi-cli/internal/model"
)

// Vector aligns fs to columns. Columns fs does not have are 0.
func Vector(fs *model.FeatureSet, columns []string) []float64 {
	out := make([]float64, len(columns))
	for i, c := range columns {
		out[i] = fs.Values[c]
	}
	return out
}

// Encode one-hot encodes a raw feature record and aligns it to columns.
// A string value v under key k becomes column "k_v" set to 1; numbers and
// booleans keep their key. Null values are skipped. Columns the record does
// not produce are 0, and produced columns the model does not know are
// dropped.
func Encode(record map[string]any, columns []string) ([]float64, error) {
	encoded, err := oneHot(record)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(columns))
	for i, c := range columns {
		out[i] = encoded[c]
	}
	return out, nil
}

func oneHot(record map[string]any) (map[string]float64, error) {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]float64, len(record))
	put := func(col string, v float64) error {
		if _, dup := out[col]; dup {
			return eris.Errorf("features: column %q produced twice", col)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Errorf("features: non-finite value for %q", col)
		}
		out[col] = v
		return nil
	}

	for _, k := range keys {
		var err error
		switch v := record[k].(type) {
		case nil:
			continue
		case string:
			err = put(k+"_"+v, 1)
		case bool:
			err = put(k, boolFloat(v))
		case float64:
			err = put(k, v)
		case float32:
			err = put(k, float64(v))
		case int:
			err = put(k, float64(v))
		case int64:
			err = put(k, float64(v))
		case json.Number:
			f, perr := strconv.ParseFloat(v.String(), 64)
			if perr != nil {
				return nil, eris.Wrapf(perr, "features: field %q", k)
			}
			err = put(k, f)
		default:
			err = eris.Errorf("features: field %q has unsupported type %s", k, typeName(v))
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func typeName(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
