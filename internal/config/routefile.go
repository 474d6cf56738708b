package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avaroute/internal/util"
)

// Condition types for has/missing.
const (
	ConditionHost   = "host"
	ConditionHeader = "header"
	ConditionCookie = "cookie"
	ConditionQuery  = "query"
)

// RouteFile is the build-output routing document.
type RouteFile struct {
	Version  int             `yaml:"version" json:"version"`
	Routes   []Rule          `yaml:"routes" json:"routes"`
	Wildcard []WildcardEntry `yaml:"wildcard,omitempty" json:"wildcard,omitempty"`
}

// WildcardEntry maps a domain to its $wildcard value.
type WildcardEntry struct {
	Domain string `yaml:"domain" json:"domain"`
	Value  string `yaml:"value" json:"value"`
}

// Rule is a single routing entry. A rule with only Handle set is a phase
// delimiter.
type Rule struct {
	Handle string `yaml:"handle,omitempty" json:"handle,omitempty"`

	Src           string            `yaml:"src,omitempty" json:"src,omitempty"`
	Dest          string            `yaml:"dest,omitempty" json:"dest,omitempty"`
	Headers       map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Methods       []string          `yaml:"methods,omitempty" json:"methods,omitempty"`
	Continue      bool              `yaml:"continue,omitempty" json:"continue,omitempty"`
	Check         bool              `yaml:"check,omitempty" json:"check,omitempty"`
	Status        int               `yaml:"status,omitempty" json:"status,omitempty"`
	Has           []Condition       `yaml:"has,omitempty" json:"has,omitempty"`
	Missing       []Condition       `yaml:"missing,omitempty" json:"missing,omitempty"`
	Locale        *LocaleConfig     `yaml:"locale,omitempty" json:"locale,omitempty"`
	Override      bool              `yaml:"override,omitempty" json:"override,omitempty"`
	CaseSensitive bool              `yaml:"caseSensitive,omitempty" json:"caseSensitive,omitempty"`

	// MiddlewarePath names the middleware function to invoke.
	MiddlewarePath string `yaml:"middlewarePath,omitempty" json:"middlewarePath,omitempty"`
}

// IsHandler reports whether the rule is a phase delimiter.
func (r *Rule) IsHandler() bool {
	return r.Handle != ""
}

// IsMiddleware reports whether the rule invokes middleware.
func (r *Rule) IsMiddleware() bool {
	return r.MiddlewarePath != ""
}

// Condition is one has/missing entry. Value, when set, is a pattern the
// whole value must match; named groups become substitution tokens.
type Condition struct {
	Type  string `yaml:"type" json:"type"`
	Key   string `yaml:"key,omitempty" json:"key,omitempty"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// LocaleConfig drives locale redirects.
type LocaleConfig struct {
	Redirect map[string]string `yaml:"redirect,omitempty" json:"redirect,omitempty"`
	Cookie   string            `yaml:"cookie,omitempty" json:"cookie,omitempty"`
}

// LoadRouteFile reads and decodes a build-output routing file.
func LoadRouteFile(path string) (*RouteFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, util.NewConfigErrorWithCause(path, "failed to read route file", err)
	}
	return ParseRouteFile(data)
}

// ParseRouteFile decodes a routing document.
func ParseRouteFile(data []byte) (*RouteFile, error) {
	var rf RouteFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, util.NewConfigErrorWithCause("", "failed to parse route file", err)
	}
	return &rf, nil
}

// WildcardMap flattens the wildcard list into a host lookup, merged over
// the entries from the service configuration.
func (rf *RouteFile) WildcardMap(base map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(rf.Wildcard))
	for k, v := range base {
		out[k] = v
	}
	for _, w := range rf.Wildcard {
		out[w.Domain] = w.Value
	}
	return out
}
