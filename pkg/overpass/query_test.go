package overpass

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in   string
		want Filter
		ok   bool
	}{
		{"landuse=industrial", Filter{Key: "landuse", Value: "industrial"}, true},
		{"highway~motorway|trunk|primary", Filter{Key: "highway", Value: "motorway|trunk|primary", Regex: true}, true},
		{"waterway", Filter{}, false},
		{"=drain", Filter{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseFilter(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterString(t *testing.T) {
	assert.Equal(t, `["landuse"="landfill"]`, Filter{Key: "landuse", Value: "landfill"}.String())
	assert.Equal(t, `["highway"~"motorway|trunk"]`, Filter{Key: "highway", Value: "motorway|trunk", Regex: true}.String())
}

func TestAreaQuery(t *testing.T) {
	q := AreaQuery("IN", Filter{Key: "waterway", Value: "drain"}, 25)

	assert.Contains(t, q, "[out:json][timeout:25];")
	assert.Contains(t, q, `area["ISO3166-1"="IN"][admin_level=2]->.country;`)
	assert.Contains(t, q, `(way["waterway"="drain"](area.country););`)
	assert.Contains(t, q, "out center;")

	q = AreaQuery("BD", Filter{Key: "landuse", Value: "industrial"}, 0)
	assert.NotContains(t, q, "timeout")
	assert.Contains(t, q, `"ISO3166-1"="BD"`)
}
