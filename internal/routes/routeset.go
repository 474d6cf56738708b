package routes

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/pattern"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

// mainPattern matches any path.
const mainPattern = "^.*$"

// RouteSet is an ordered, phase-partitioned rule list. It is immutable after
// New returns and safe for concurrent use.
type RouteSet struct {
	rules  []*Rule
	phases map[Phase][]*Rule
}

// New compiles and validates rules. Patterns are compiled through cache;
// rules are matched case-insensitively unless they set caseSensitive.
func New(rules []config.Rule, cache *pattern.Cache) (*RouteSet, error) {
	if cache == nil {
		cache = pattern.NewCache()
	}

	b := &builder{
		cache:  cache,
		errs:   util.NewValidationError("invalid route set"),
		seen:   make(map[Phase]bool),
		phase:  PhaseNull,
		phases: make(map[Phase][]*Rule),
	}

	for i := range rules {
		b.add(i, &rules[i])
	}

	if b.errs.HasFields() {
		return nil, b.errs
	}

	mainMatcher, err := cache.Compile(mainPattern)
	if err != nil {
		return nil, fmt.Errorf("compile main rule: %w", err)
	}
	b.phases[PhaseMain] = []*Rule{{
		Index:    -1,
		Phase:    PhaseMain,
		Src:      mainPattern,
		Matcher:  mainMatcher,
		Continue: true,
		Check:    true,
	}}

	return &RouteSet{rules: b.rules, phases: b.phases}, nil
}

// Phase returns the rules of a phase in source order. The result is empty
// when the phase has no rules and must not be modified.
func (rs *RouteSet) Phase(p Phase) []*Rule {
	return rs.phases[p]
}

// Rules returns every non-synthetic rule in source order.
func (rs *RouteSet) Rules() []*Rule {
	return rs.rules
}

// Summary returns the number of rules per phase.
func (rs *RouteSet) Summary() map[Phase]int {
	out := make(map[Phase]int, len(rs.phases))
	for p, rules := range rs.phases {
		out[p] = len(rules)
	}
	return out
}

type builder struct {
	cache  *pattern.Cache
	errs   *util.ValidationError
	seen   map[Phase]bool
	phase  Phase
	rules  []*Rule
	phases map[Phase][]*Rule
}

func (b *builder) add(i int, src *config.Rule) {
	field := fmt.Sprintf("routes[%d]", i)

	if src.IsHandler() {
		p, ok := handles[src.Handle]
		if !ok {
			b.errs.AddField(field+".handle", fmt.Sprintf("unknown handle %q", src.Handle))
			return
		}
		if b.seen[p] {
			b.errs.AddField(field+".handle", fmt.Sprintf("handle %q appears more than once", src.Handle))
		}
		b.seen[p] = true
		b.phase = p
		return
	}

	r := &Rule{
		Index:      i,
		Phase:      b.phase,
		Src:        src.Src,
		Dest:       src.Dest,
		Headers:    sortedHeaders(src.Headers),
		Status:     src.Status,
		Continue:   src.Continue,
		Check:      src.Check,
		Override:   src.Override,
		Locale:     src.Locale,
		Middleware: src.MiddlewarePath,
	}

	if src.Src == "" {
		b.errs.AddField(field+".src", "pattern is required")
	} else if m, err := b.cache.Compile(caseFold(src.Src, src.CaseSensitive)); err != nil {
		b.errs.AddField(field+".src", fmt.Sprintf("invalid pattern: %v", err))
	} else {
		r.Matcher = m
	}

	if len(src.Methods) > 0 {
		r.Methods = make(map[string]bool, len(src.Methods))
		for _, m := range src.Methods {
			r.Methods[strings.ToUpper(m)] = true
		}
	}

	r.Has = b.conditions(field+".has", src.Has)
	r.Missing = b.conditions(field+".missing", src.Missing)

	b.validate(field, r)

	b.rules = append(b.rules, r)
	b.phases[r.Phase] = append(b.phases[r.Phase], r)
}

func (b *builder) conditions(field string, in []config.Condition) []Condition {
	if len(in) == 0 {
		return nil
	}
	out := make([]Condition, 0, len(in))
	for j, c := range in {
		f := fmt.Sprintf("%s[%d]", field, j)
		cond := Condition{Type: c.Type, Key: c.Key}

		switch c.Type {
		case config.ConditionHost:
			if c.Value == "" {
				b.errs.AddField(f+".value", "host condition requires a value")
			}
		case config.ConditionHeader, config.ConditionCookie, config.ConditionQuery:
			if c.Key == "" {
				b.errs.AddField(f+".key", "key is required")
			}
		default:
			b.errs.AddField(f+".type", fmt.Sprintf("unknown condition type %q", c.Type))
		}

		if c.Value != "" {
			m, err := b.cache.Compile(anchor(c.Value))
			if err != nil {
				b.errs.AddField(f+".value", fmt.Sprintf("invalid pattern: %v", err))
			}
			cond.Value = m
		}
		out = append(out, cond)
	}
	return out
}

func (b *builder) validate(field string, r *Rule) {
	if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
		b.errs.AddField(field+".status", fmt.Sprintf("status %d out of range", r.Status))
	}
	for _, h := range r.Headers {
		if err := util.ValidateHeaderName(h.Name); err != nil {
			b.errs.AddField(field+".headers", err.Error())
		}
	}

	if r.IsMiddleware() {
		if r.Phase != PhaseNull {
			b.errs.AddField(field+".middlewarePath", "middleware is only allowed before the first handle")
		}
		if r.Dest != "" || r.Status != 0 || len(r.Headers) > 0 {
			b.errs.AddField(field+".middlewarePath", "middleware rules cannot set dest, status or headers")
		}
	}

	switch r.Phase {
	case PhaseHit:
		if r.Dest != "" {
			b.errs.AddField(field+".dest", "hit rules cannot set dest")
		}
		if r.Status != 0 {
			b.errs.AddField(field+".status", "hit rules cannot set status")
		}
		if r.Check {
			b.errs.AddField(field+".check", "hit rules cannot set check")
		}
		if !r.Continue {
			b.errs.AddField(field+".continue", "hit rules must continue")
		}
	case PhaseError:
		if r.Check {
			b.errs.AddField(field+".check", "error rules cannot set check")
		}
	}
}

// caseFold prefixes the case-insensitive flag unless the rule opts out.
func caseFold(src string, caseSensitive bool) string {
	if caseSensitive || strings.HasPrefix(src, "(?i)") {
		return src
	}
	return "(?i)" + src
}

// anchor makes a condition value match the whole input.
func anchor(v string) string {
	return "^(?:" + v + ")$"
}
