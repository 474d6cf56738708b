package pattern

import (
	"regexp"
	"strconv"
	"strings"
)

// Matcher matches paths against a compiled pattern.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
	names   map[string]int
}

func newMatcher(pattern string, re *regexp.Regexp) *Matcher {
	names := make(map[string]int)
	for i, name := range re.SubexpNames() {
		if name != "" {
			names[name] = i
		}
	}
	return &Matcher{pattern: pattern, re: re, names: names}
}

// Pattern returns the source pattern.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Match is the result of a successful match. Captures[0] is the whole
// match; Names maps a named group to its index in Captures.
type Match struct {
	Captures []string
	Names    map[string]int
}

// Match tries path as given, then without its leading slash. It returns nil
// when neither matches.
func (m *Matcher) Match(path string) *Match {
	if caps := m.re.FindStringSubmatch(path); caps != nil {
		return &Match{Captures: caps, Names: m.names}
	}
	if trimmed, ok := strings.CutPrefix(path, "/"); ok {
		if caps := m.re.FindStringSubmatch(trimmed); caps != nil {
			return &Match{Captures: caps, Names: m.names}
		}
	}
	return nil
}

// MatchString reports whether s matches without the leading slash fallback.
func (m *Matcher) MatchString(s string) *Match {
	caps := m.re.FindStringSubmatch(s)
	if caps == nil {
		return nil
	}
	return &Match{Captures: caps, Names: m.names}
}

// Named returns the value of a named group.
func (r *Match) Named(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	i, ok := r.Names[name]
	if !ok || i >= len(r.Captures) {
		return "", false
	}
	return r.Captures[i], true
}

// Index returns the positional capture i.
func (r *Match) Index(i int) (string, bool) {
	if r == nil || i < 0 || i >= len(r.Captures) {
		return "", false
	}
	return r.Captures[i], true
}

var tokenPattern = regexp.MustCompile(`\$([0-9A-Za-z_]+)`)

// Substitute replaces $name and $N tokens in template. Named captures win,
// then extra tokens, then positional captures. Unresolved tokens become
// empty, except $0 which is kept literally when m is nil.
func Substitute(template string, m *Match, extra map[string]string) string {
	if !strings.Contains(template, "$") {
		return template
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1:]
		if v, ok := m.Named(name); ok {
			return v
		}
		if v, ok := extra[name]; ok {
			return v
		}
		n, err := strconv.Atoi(name)
		if err != nil {
			return ""
		}
		if m == nil && n == 0 {
			return tok
		}
		v, _ := m.Index(n)
		return v
	})
}
