package router

import (
	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/pattern"
	"github.com/vyrodovalexey/avaroute/internal/routes"
)

// conditionValue returns the request value a condition inspects.
func conditionValue(c *routes.Condition, mc *MatchContext) (string, bool) {
	switch c.Type {
	case config.ConditionHost:
		return mc.Host, true
	case config.ConditionHeader:
		vals := mc.Header.Values(c.Key)
		if len(vals) == 0 {
			return "", false
		}
		return vals[0], true
	case config.ConditionCookie:
		v, ok := mc.Cookies()[c.Key]
		return v, ok
	case config.ConditionQuery:
		vals, ok := mc.Query[c.Key]
		if !ok {
			return "", false
		}
		if len(vals) == 0 {
			return "", true
		}
		return vals[0], true
	}
	return "", false
}

// testCondition reports whether c holds and returns its named captures.
func testCondition(c *routes.Condition, mc *MatchContext) (bool, map[string]string) {
	v, ok := conditionValue(c, mc)
	if !ok {
		return false, nil
	}
	if c.Value == nil {
		return true, nil
	}
	m := c.Value.MatchString(v)
	if m == nil {
		return false, nil
	}
	return true, namedCaptures(m)
}

// matchConditions applies has (all must hold) and missing (none may hold).
// Named captures of has values are merged into tokens.
func matchConditions(rule *routes.Rule, mc *MatchContext, tokens map[string]string) bool {
	for i := range rule.Has {
		ok, caps := testCondition(&rule.Has[i], mc)
		if !ok {
			return false
		}
		for k, v := range caps {
			tokens[k] = v
		}
	}
	for i := range rule.Missing {
		if ok, _ := testCondition(&rule.Missing[i], mc); ok {
			return false
		}
	}
	return true
}

func namedCaptures(m *pattern.Match) map[string]string {
	if m == nil || len(m.Names) == 0 {
		return nil
	}
	out := make(map[string]string, len(m.Names))
	for name := range m.Names {
		if v, ok := m.Named(name); ok {
			out[name] = v
		}
	}
	return out
}
