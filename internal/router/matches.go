package router

import (
	"net/url"
	"strconv"

	"github.com/vyrodovalexey/avaroute/internal/pattern"
)

// encodeMatches serializes captures as a query string: named groups by
// name, every group by position. The whole match is omitted.
func encodeMatches(m *pattern.Match) string {
	if m == nil || len(m.Captures) < 2 {
		return ""
	}
	v := make(url.Values, len(m.Captures))
	for name, i := range m.Names {
		if i < len(m.Captures) {
			v.Set(name, m.Captures[i])
		}
	}
	for i := 1; i < len(m.Captures); i++ {
		v.Set(strconv.Itoa(i), m.Captures[i])
	}
	return v.Encode()
}
