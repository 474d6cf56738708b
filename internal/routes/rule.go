package routes

import (
	"net/http"
	"sort"
	"strings"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/pattern"
)

// Rule is a compiled, immutable routing entry.
type Rule struct {
	// Index is the position in the source rule list, or -1 for the
	// synthetic main rule.
	Index int
	Phase Phase

	Src     string
	Matcher *pattern.Matcher

	Dest       string
	Headers    []Header
	Methods    map[string]bool
	Has        []Condition
	Missing    []Condition
	Status     int
	Continue   bool
	Check      bool
	Override   bool
	Locale     *config.LocaleConfig
	Middleware string
}

// Header is one templated header effect. Headers are kept sorted by name so
// that application order is stable.
type Header struct {
	Name  string
	Value string
}

// Condition is a compiled has/missing entry.
type Condition struct {
	Type  string
	Key   string
	Value *pattern.Matcher
}

// IsMiddleware reports whether the rule invokes middleware.
func (r *Rule) IsMiddleware() bool {
	return r.Middleware != ""
}

// AllowsMethod reports whether method passes the rule's method filter.
// HEAD is accepted wherever GET is.
func (r *Rule) AllowsMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	method = strings.ToUpper(method)
	if r.Methods[method] {
		return true
	}
	return method == http.MethodHead && r.Methods[http.MethodGet]
}

func sortedHeaders(h map[string]string) []Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]Header, 0, len(h))
	for k, v := range h {
		out = append(out, Header{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
