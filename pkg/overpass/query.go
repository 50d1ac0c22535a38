package overpass

import (
	"fmt"
	"strings"
)

// Filter is a single tag filter, e.g. landuse=industrial or
// highway~motorway|trunk|primary.
type Filter struct {
	Key   string
	Value string
	Regex bool
}

func (f Filter) String() string {
	op := "="
	if f.Regex {
		op = "~"
	}
	return fmt.Sprintf("[%q%s%q]", f.Key, op, f.Value)
}

// ParseFilter parses "key=value" or "key~regex".
func ParseFilter(s string) (Filter, bool) {
	if k, v, ok := strings.Cut(s, "~"); ok && k != "" {
		return Filter{Key: k, Value: v, Regex: true}, true
	}
	if k, v, ok := strings.Cut(s, "="); ok && k != "" {
		return Filter{Key: k, Value: v}, true
	}
	return Filter{}, false
}

// AreaQuery builds a JSON query for ways matching filter inside the country
// with the given ISO 3166-1 code, returning way centers.
func AreaQuery(country string, filter Filter, timeoutSecs int) string {
	var b strings.Builder
	b.WriteString("[out:json]")
	if timeoutSecs > 0 {
		fmt.Fprintf(&b, "[timeout:%d]", timeoutSecs)
	}
	b.WriteString(";\n")
	fmt.Fprintf(&b, "area[\"ISO3166-1\"=%q][admin_level=2]->.country;\n", country)
	fmt.Fprintf(&b, "(way%s(area.country););\n", filter)
	b.WriteString("out center;\n")
	return b.String()
}
