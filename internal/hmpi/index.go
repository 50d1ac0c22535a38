// Package hmpi computes the Heavy Metal Pollution Index from measured metal
// concentrations.
package hmpi

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Limits are the permissible concentrations in mg/L used as the standard
// for each metal.
var Limits = map[string]float64{
	"Pb": 0.01,
	"Cd": 0.003,
	"Cr": 0.05,
	"As": 0.01,
	"Ni": 0.07,
	"Zn": 5.0,
	"Cu": 2.0,
	"Fe": 0.3,
	"Mn": 0.1,
}

// unitSuffix is accepted on keys, so "Pb_mgL" and "Pb" are the same metal.
const unitSuffix = "_mgL"

// Metals returns the supported metal symbols in sorted order.
func Metals() []string {
	out := make([]string, 0, len(Limits))
	for m := range Limits {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Normalize maps a concentration key to its metal symbol.
func Normalize(key string) (string, bool) {
	sym := strings.TrimSuffix(strings.TrimSpace(key), unitSuffix)
	_, ok := Limits[sym]
	return sym, ok
}

// Compute returns the HMPI over the supplied metals:
//
//	Σ (c/limit · 100 · w) / Σ w, with w = 1/limit.
//
// Concentrations are in mg/L.
func Compute(concentrations map[string]float64) (float64, error) {
	if len(concentrations) == 0 {
		return 0, eris.New("hmpi: no concentrations supplied")
	}

	var num, den float64
	seen := make(map[string]string, len(concentrations))
	for key, c := range concentrations {
		sym, ok := Normalize(key)
		if !ok {
			return 0, eris.Errorf("hmpi: unknown metal %q", key)
		}
		if prev, dup := seen[sym]; dup {
			return 0, eris.Errorf("hmpi: %q and %q name the same metal", prev, key)
		}
		seen[sym] = key
		if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
			return 0, eris.Errorf("hmpi: invalid concentration %v for %s", c, sym)
		}

		limit := Limits[sym]
		w := 1 / limit
		num += c / limit * 100 * w
		den += w
	}
	return num / den, nil
}
